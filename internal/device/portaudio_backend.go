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

package device

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend using the real PortAudio library.
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a PortAudio-backed Backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("device: portaudio init: %w", err)
	}
	p.initialized = true
	return nil
}

func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}
	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// OpenDuplex opens the default duplex stream and drives cb from
// PortAudio's own realtime callback thread for every device period.
func (p *PortAudioBackend) OpenDuplex(params Params, cb StreamCallback) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("device: not initialized")
	}

	stream, err := portaudio.OpenDefaultStream(
		params.InputChannels,
		params.OutputChannels,
		params.SampleRate,
		params.FramesPerBuffer,
		cb,
	)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "denied") || strings.Contains(msg, "unauthorized") {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("device: open duplex stream: %w", err)
	}
	return &portaudioStream{stream: stream}, nil
}

type portaudioStream struct {
	stream *portaudio.Stream
}

func (s *portaudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("device: start stream: %w", err)
	}
	return nil
}

func (s *portaudioStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("device: stop stream: %w", err)
	}
	return nil
}

func (s *portaudioStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("device: close stream: %w", err)
	}
	return nil
}
