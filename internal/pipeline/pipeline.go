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

// Package pipeline wires the delay line, both SPSC queues, the audio
// engine, the recognition worker, the aligner, the quality-metrics
// sink, the UI event bus, and the lyrics-fetch collaborator into one
// runnable unit, and owns the startup/shutdown sequence spec.md §5
// mandates.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/explicitlyaudio/silencer/internal/aligner"
	"github.com/explicitlyaudio/silencer/internal/config"
	"github.com/explicitlyaudio/silencer/internal/delayline"
	"github.com/explicitlyaudio/silencer/internal/device"
	"github.com/explicitlyaudio/silencer/internal/engine"
	"github.com/explicitlyaudio/silencer/internal/eventbus"
	"github.com/explicitlyaudio/silencer/internal/lyricsfetch"
	"github.com/explicitlyaudio/silencer/internal/metrics"
	"github.com/explicitlyaudio/silencer/internal/profanity"
	"github.com/explicitlyaudio/silencer/internal/recognizer"
	"github.com/explicitlyaudio/silencer/internal/report"
	"github.com/explicitlyaudio/silencer/internal/spscqueue"
	"github.com/explicitlyaudio/silencer/internal/wire"
	"github.com/explicitlyaudio/silencer/internal/worker"
)

// metricsSampleInterval is how often the non-realtime metrics sampler
// polls the engine's lock-free atomics (spec.md §4.9).
const metricsSampleInterval = 250 * time.Millisecond

// chunkQueueCapacity and censorQueueCapacity size the two SPSC queues
// that cross the realtime/non-realtime boundary.
const (
	chunkQueueCapacity  = 8
	censorQueueCapacity = 64
)

// Deps bundles the collaborators Pipeline wires together. Backend and
// Recognizer are required; Fetcher and Events are optional (a nil
// Fetcher disables lyric alignment, a nil Events disables the UI event
// stream — both are legal per spec.md §7's recoverable-fault taxonomy).
type Deps struct {
	Config     *config.Config
	Backend    device.Backend
	Recognizer recognizer.Recognizer
	Fetcher    lyricsfetch.Fetcher
	Events     *eventbus.Publisher
	Logger     *slog.Logger
}

// Pipeline owns every collaborator's lifecycle for one running session.
type Pipeline struct {
	cfg        *config.Config
	backend    device.Backend
	stream     device.Stream
	recognizer recognizer.Recognizer
	events     *eventbus.Publisher
	dispatcher *lyricsfetch.Dispatcher

	line    *delayline.Line
	eng     *engine.Engine
	al      *aligner.Aligner
	wrk     *worker.Worker
	metrics *metrics.Session
	report  *report.Writer
	log     *slog.Logger

	songMu      sync.Mutex
	songArtist  string
	songTitle   string
	songSpans   []report.Span
	songStarted time.Time

	cancel          context.CancelFunc
	group           *errgroup.Group
	lastBufferState engine.BufferState

	// lastDropped/lastClipping are the previous sampleMetrics tick's
	// engine counters, so only the delta since the last tick is folded
	// into the metrics session (the engine counters are cumulative for
	// the whole run).
	lastDroppedQueueFull uint64
	lastClippingEvents   uint64
}

// New validates deps, loads the profanity lexicon, and wires every
// collaborator together. It does not touch the audio device — call
// Start for that.
func New(deps Deps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("pipeline: Config is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("pipeline: Backend is required")
	}
	if deps.Recognizer == nil {
		return nil, fmt.Errorf("pipeline: Recognizer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	lexicon, err := profanity.LoadLexiconFile(cfg.Lexicon.Path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load lexicon: %w", err)
	}

	capacitySamples := int(cfg.Audio.DelayCapacitySeconds * float64(cfg.Device.SampleRate))
	line := delayline.New(cfg.Device.Channels, capacitySamples)
	chunks := spscqueue.New[wire.ChunkDescriptor](chunkQueueCapacity)
	censors := spscqueue.New[wire.CensorEvent](censorQueueCapacity)

	al := aligner.New()
	mode := cfg.Audio.CensorMode.ToWire()

	eng := engine.New(line, chunks, censors, engine.Config{
		SampleRate:          cfg.Device.SampleRate,
		Channels:            cfg.Device.Channels,
		ChunkSeconds:        cfg.Audio.ChunkSeconds,
		InitialDelaySeconds: cfg.Audio.InitialDelaySeconds,
		Mode:                mode,
		Logger:              logger,
	})

	sess := metrics.NewSession()
	rep := report.New(cfg.Report.Dir)

	p := &Pipeline{
		cfg:        cfg,
		backend:    deps.Backend,
		recognizer: deps.Recognizer,
		events:     deps.Events,
		line:       line,
		eng:        eng,
		al:         al,
		metrics:    sess,
		report:     rep,
		log:        logger,
	}

	p.wrk = worker.New(worker.Deps{
		Line:                 line,
		Chunks:               chunks,
		Censors:              censors,
		Recognizer:           deps.Recognizer,
		Aligner:              al,
		Lexicon:              lexicon,
		Events:               deps.Events,
		Mode:                 mode,
		PadBefore:            cfg.Audio.PadBefore,
		PadAfter:             cfg.Audio.PadAfter,
		RecognizerSampleRate: cfg.Audio.RecognizerSampleRate,
		OnSpan:               p.recordSpan,
		OnCensorship:         p.recordCensorship,
		OnChunkTiming:        sess.RecordRTF,
		OnChunkDone:          eng.ReleaseChunkInFlight,
		Logger:               logger,
	})

	if deps.Fetcher != nil {
		p.dispatcher = lyricsfetch.NewDispatcher(deps.Fetcher, al.SetLyrics, logger)
	}

	return p, nil
}

// recordSpan appends a detected span to the song currently playing, for
// the end-of-song report (spec.md §6 Persisted state).
func (p *Pipeline) recordSpan(label string, start, end float64) {
	p.songMu.Lock()
	defer p.songMu.Unlock()
	p.songSpans = append(p.songSpans, report.Span{Label: label, Start: start, End: end})
}

// recordCensorship folds one detected match into the quality-metrics
// session (spec.md §4.9 words_detected/words_censored/multi_word_detections).
// It is called from the worker goroutine at the moment a censor event is
// queued, so it counts the match as censored. The engine may still drop
// the rewrite later (too late, critical underrun); sampleMetrics only
// logs those counters. What sampleMetrics folds into words_skipped is
// the engine's count of chunk descriptors dropped on a full chunk queue.
func (p *Pipeline) recordCensorship(label string, multiWord bool) {
	p.metrics.RecordCensorship(metrics.Event{
		Word:      label,
		Censored:  true,
		MultiWord: multiWord,
		Mode:      string(p.cfg.Audio.CensorMode),
	})
}

// OnNowPlaying is the callback the now-playing metadata source invokes
// asynchronously whenever the active song changes (spec.md §6 Inputs).
// It closes out the previous song's report, dispatches a detached
// lyrics fetch for the new one, and republishes the change to the UI.
func (p *Pipeline) OnNowPlaying(ctx context.Context, artist, title string, isPlaying bool) {
	if !isPlaying {
		return
	}
	p.finishCurrentSong()

	p.songMu.Lock()
	p.songArtist, p.songTitle = artist, title
	p.songSpans = nil
	p.songStarted = time.Now()
	p.songMu.Unlock()

	// Drop any lyrics from the previous song immediately; the aligner
	// falls back to pass-through until the new fetch resolves.
	p.al.SetLyrics("")

	if p.dispatcher != nil {
		p.dispatcher.Dispatch(ctx, artist, title)
	}
	if p.events != nil {
		if err := p.events.PublishNowPlaying(eventbus.NowPlayingInfo{
			Artist: artist, Title: title, StartedAt: p.songStarted,
		}); err != nil {
			p.log.Warn("publish now-playing failed", "error", err)
		}
	}
}

func (p *Pipeline) finishCurrentSong() {
	p.songMu.Lock()
	artist, title, spans := p.songArtist, p.songTitle, p.songSpans
	p.songMu.Unlock()

	if artist == "" && title == "" {
		return
	}
	if _, err := p.report.Write(artist, title, spans, time.Now()); err != nil {
		p.log.Warn("failed to write song report", "artist", artist, "title", title, "error", err)
	}
}

// Metrics returns the pipeline's quality-metrics session for inspection
// or a UI to poll.
func (p *Pipeline) Metrics() *metrics.Session {
	return p.metrics
}

// Start opens the audio device and launches the worker and metrics
// sampler. It returns once both are running; call Shutdown to tear
// everything down in the order spec.md §5 requires.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.backend.Initialize(); err != nil {
		return fmt.Errorf("pipeline: initialize audio backend: %w", err)
	}

	params := device.Params{
		SampleRate:      float64(p.cfg.Device.SampleRate),
		InputChannels:   p.cfg.Device.Channels,
		OutputChannels:  p.cfg.Device.Channels,
		FramesPerBuffer: p.cfg.Device.FramesPerBuffer,
	}
	stream, err := p.backend.OpenDuplex(params, p.eng.Process)
	if err != nil {
		_ = p.backend.Terminate()
		return fmt.Errorf("pipeline: open duplex stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = p.backend.Terminate()
		return fmt.Errorf("pipeline: start stream: %w", err)
	}
	p.stream = stream

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	p.group = group

	group.Go(func() error {
		p.wrk.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		p.sampleMetrics(groupCtx)
		return nil
	})

	p.log.Info("pipeline started",
		"sample_rate", p.cfg.Device.SampleRate,
		"channels", p.cfg.Device.Channels,
		"censor_mode", p.cfg.Audio.CensorMode)
	return nil
}

// sampleMetrics polls the engine's lock-free level/buffer atomics from a
// non-realtime goroutine and folds them into the metrics session and
// the UI event stream (spec.md §4.9, §5's "never touched on the audio
// thread" rule for the metrics mutex).
func (p *Pipeline) sampleMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.metrics.RecordLevel(p.eng.InputLevel())
			p.metrics.RecordBufferSize(p.eng.GapSeconds())

			state := p.eng.State()
			if state == engine.Starving && p.lastBufferState != engine.Starving {
				p.metrics.RecordUnderrun()
			}
			if state != p.lastBufferState {
				p.lastBufferState = state
				if p.events != nil {
					gap := p.line.Gap()
					if err := p.events.PublishBufferHealth(eventbus.BufferHealthDetail{
						State:        state.String(),
						GapSamples:   gap,
						CapacitySize: p.line.Capacity(),
					}); err != nil {
						p.log.Warn("publish buffer health failed", "error", err)
					}
				}
			}

			tooLate, queueFull, critical := p.eng.Dropped()
			if tooLate+queueFull+critical > 0 {
				p.log.Debug("engine dropped rewrites",
					"too_late", tooLate, "queue_full", queueFull, "critical_underrun", critical)
			}
			if queueFull > p.lastDroppedQueueFull {
				delta := int(queueFull - p.lastDroppedQueueFull)
				p.lastDroppedQueueFull = queueFull
				p.metrics.RecordSkipped(delta)
			}

			clipped := p.eng.ClippingEvents()
			if clipped > p.lastClippingEvents {
				delta := int(clipped - p.lastClippingEvents)
				p.lastClippingEvents = clipped
				for i := 0; i < delta; i++ {
					p.metrics.RecordClipping()
				}
			}
		}
	}
}

// Shutdown stops the worker, closes the audio device, and releases
// external resources in the order spec.md §5 mandates: stop flag first
// (cancel), worker drains and exits, device closes, join worker, then
// free resources.
func (p *Pipeline) Shutdown() error {
	p.finishCurrentSong()

	if p.cancel != nil {
		p.cancel()
	}

	var streamErr error
	if p.stream != nil {
		streamErr = p.stream.Stop()
		if err := p.stream.Close(); err != nil && streamErr == nil {
			streamErr = err
		}
	}

	var groupErr error
	if p.group != nil {
		groupErr = p.group.Wait()
	}

	backendErr := p.backend.Terminate()

	if p.events != nil {
		p.events.Close()
	}
	if p.recognizer != nil {
		_ = p.recognizer.Close()
	}

	for _, err := range []error{streamErr, groupErr, backendErr} {
		if err != nil {
			return fmt.Errorf("pipeline: shutdown: %w", err)
		}
	}
	return nil
}
