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

package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies defaults for
// anything left unset, and returns a validated Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are built from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values, returning
// a joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.CensorMode != "" && !cfg.Audio.CensorMode.IsValid() {
		errs = append(errs, fmt.Errorf("audio.censor_mode %q is invalid; valid values: mute, reverse", cfg.Audio.CensorMode))
	}
	if cfg.Audio.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_seconds must be positive, got %v", cfg.Audio.ChunkSeconds))
	}
	if cfg.Audio.InitialDelaySeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.initial_delay_seconds must be positive, got %v", cfg.Audio.InitialDelaySeconds))
	}
	if cfg.Audio.DelayCapacitySeconds < cfg.Audio.InitialDelaySeconds {
		errs = append(errs, fmt.Errorf("audio.delay_capacity_seconds (%v) must be at least audio.initial_delay_seconds (%v)",
			cfg.Audio.DelayCapacitySeconds, cfg.Audio.InitialDelaySeconds))
	}
	if cfg.Audio.PadBefore < 0 || cfg.Audio.PadAfter < 0 {
		errs = append(errs, fmt.Errorf("audio.pad_before and audio.pad_after must not be negative"))
	}
	if cfg.Audio.RecognizerSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.recognizer_sample_rate must be positive, got %v", cfg.Audio.RecognizerSampleRate))
	}

	if cfg.Lexicon.Path == "" {
		errs = append(errs, fmt.Errorf("lexicon.path is required"))
	}

	if cfg.Device.Channels <= 0 {
		errs = append(errs, fmt.Errorf("device.channels must be positive, got %v", cfg.Device.Channels))
	}
	if cfg.Device.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("device.sample_rate must be positive, got %v", cfg.Device.SampleRate))
	}
	if cfg.Device.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("device.frames_per_buffer must be positive, got %v", cfg.Device.FramesPerBuffer))
	}

	return errors.Join(errs...)
}
