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

// Package config defines the pipeline's YAML configuration schema
// (spec.md §6 Configuration) and how it is loaded and validated.
package config

import "github.com/explicitlyaudio/silencer/internal/wire"

// LogLevel mirrors the log/slog level names accepted in configuration.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a recognized level name. An empty level
// is not valid on its own, but callers should treat empty as "unset"
// and fall back to a default rather than rejecting it.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// CensorMode names the rewrite operator applied to detected spans.
type CensorMode string

const (
	CensorModeMute    CensorMode = "mute"
	CensorModeReverse CensorMode = "reverse"
)

// IsValid reports whether m is a recognized censor mode.
func (m CensorMode) IsValid() bool {
	switch m {
	case CensorModeMute, CensorModeReverse:
		return true
	default:
		return false
	}
}

// ToWire converts m to the wire.CensorMode the engine and worker
// exchange over the SPSC queue.
func (m CensorMode) ToWire() wire.CensorMode {
	if m == CensorModeReverse {
		return wire.ModeReverse
	}
	return wire.ModeMute
}

// Config is the top-level configuration schema.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Device  DeviceConfig  `yaml:"device"`
	Audio   AudioConfig   `yaml:"audio"`
	Lexicon LexiconConfig `yaml:"lexicon"`
	Lyrics  LyricsConfig  `yaml:"lyrics"`
	Events  EventsConfig  `yaml:"events"`
	Report  ReportConfig  `yaml:"report"`
}

// DeviceConfig selects the physical duplex audio device the engine
// opens. Empty device names mean "use the platform default".
type DeviceConfig struct {
	InputName       string `yaml:"input_name"`
	OutputName      string `yaml:"output_name"`
	Channels        int    `yaml:"channels"`
	SampleRate      int    `yaml:"sample_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

// ServerConfig holds process-wide ambient settings.
type ServerConfig struct {
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the audio pipeline tunables enumerated in
// spec.md §6.
type AudioConfig struct {
	ChunkSeconds              float64    `yaml:"chunk_seconds"`
	InitialDelaySeconds       float64    `yaml:"initial_delay_seconds"`
	DelayCapacitySeconds      float64    `yaml:"delay_capacity_seconds"`
	CensorMode                CensorMode `yaml:"censor_mode"`
	PadBefore                 float64    `yaml:"pad_before"`
	PadAfter                  float64    `yaml:"pad_after"`
	RecognizerSampleRate      int        `yaml:"recognizer_sample_rate"`
	MinBufferBeforeStripCensor float64   `yaml:"min_buffer_before_strip_censor"`
}

// LexiconConfig points at the profanity word list.
type LexiconConfig struct {
	Path string `yaml:"path"`
}

// LyricsConfig configures the network lyrics-fetch collaborator.
type LyricsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// EventsConfig configures the NATS-backed UI event bus.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// ReportConfig configures per-song report output.
type ReportConfig struct {
	Dir string `yaml:"dir"`
}

// defaults returns a Config populated with the defaults spec.md §6
// enumerates for each setting.
func defaults() Config {
	return Config{
		Server: ServerConfig{LogLevel: LogLevelInfo},
		Device: DeviceConfig{
			Channels:        2,
			SampleRate:      48000,
			FramesPerBuffer: 1024,
		},
		Audio: AudioConfig{
			ChunkSeconds:               2.0,
			InitialDelaySeconds:        3.0,
			DelayCapacitySeconds:       3.0 + 10.0,
			CensorMode:                 CensorModeReverse,
			PadBefore:                  0.4,
			PadAfter:                   0.1,
			RecognizerSampleRate:       16000,
			MinBufferBeforeStripCensor: 2.5,
		},
		Report: ReportConfig{Dir: "TestLogs"},
	}
}
