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

// Package device abstracts the duplex audio device that the engine reads
// input from and writes output to. Production code talks to the real
// sound card through PortAudio; tests inject a Backend that drives the
// same callback contract synthetically, without hardware.
package device

import "errors"

// ErrPermissionDenied is returned when the OS has denied microphone access.
var ErrPermissionDenied = errors.New("device: input access denied — check OS privacy settings")

// StreamCallback is invoked once per device period with interleaved input
// and output sample frames of identical length (frames * channels floats).
// Implementations must return within the device's period budget: no
// allocation, no blocking I/O, no locks that a non-realtime thread might
// hold for long.
type StreamCallback func(input, output []float32)

// Params configures a duplex stream.
type Params struct {
	SampleRate      float64
	InputChannels   int
	OutputChannels  int
	FramesPerBuffer int
}

// Stream is an open duplex audio stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend opens duplex audio streams. Implementations must be safe to
// Initialize/Terminate at most once per process lifetime.
type Backend interface {
	Initialize() error
	Terminate() error

	// OpenDuplex opens a single stream that calls cb once per device
	// period with the input and output buffers for that period.
	OpenDuplex(p Params, cb StreamCallback) (Stream, error)
}
