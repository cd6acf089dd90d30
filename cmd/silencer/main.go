/*
 * This file is part of Silencer.
 * Copyright (C) 2026 Explicitly Audio Systems
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Command silencer runs the real-time profanity-filtering audio
// pipeline: it opens a duplex audio device, recognizes speech, aligns it
// to lyrics when available, and censors matched spans on the way to the
// speakers (spec.md §1).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/explicitlyaudio/silencer/internal/config"
	"github.com/explicitlyaudio/silencer/internal/device"
	"github.com/explicitlyaudio/silencer/internal/eventbus"
	"github.com/explicitlyaudio/silencer/internal/lyricsfetch"
	"github.com/explicitlyaudio/silencer/internal/pipeline"
	"github.com/explicitlyaudio/silencer/internal/recognizer"
)

func main() {
	configPath := flag.String("config", "silencer.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	deps := pipeline.Deps{
		Config:     cfg,
		Backend:    device.NewPortAudioBackend(),
		Recognizer: newRecognizer(logger),
		Logger:     logger,
	}

	if cfg.Lyrics.BaseURL != "" {
		deps.Fetcher = lyricsfetch.NewHTTPFetcher(cfg.Lyrics.BaseURL, logger)
	}

	if cfg.Events.NATSURL != "" {
		pub, err := eventbus.Connect(cfg.Events.NATSURL, logger)
		if err != nil {
			logger.Warn("continuing without the UI event bus", "nats_url", cfg.Events.NATSURL, "error", err)
		} else {
			deps.Events = pub
		}
	}

	p, err := pipeline.New(deps)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if deps.Events != nil {
		if _, err := deps.Events.SubscribeNowPlayingInput(func(info eventbus.NowPlayingInfo) {
			p.OnNowPlaying(ctx, info.Artist, info.Title, true)
		}); err != nil {
			logger.Warn("failed to subscribe to now-playing input", "error", err)
		}
	}

	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}
	logger.Info("silencer running", "config", *configPath)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining pipeline")

	if err := p.Shutdown(); err != nil {
		logger.Error("shutdown reported errors", "error", err)
		os.Exit(1)
	}
}

// newRecognizer builds the recognizer.Recognizer the pipeline uses.
// Real speech recognition is an external engine binding (spec.md §9)
// that this repo does not vendor; recognizer.Fake stands in as the
// wiring point until one is configured.
func newRecognizer(logger *slog.Logger) recognizer.Recognizer {
	logger.Warn("no speech recognition engine configured, running with a no-op recognizer")
	return &recognizer.Fake{}
}
