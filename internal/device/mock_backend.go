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
	"sync"
)

// MockBackend implements Backend without touching real hardware. Tests
// drive the pipeline by calling Pump on the opened stream to synthesize
// one device period at a time: Pump passes the caller's input to the
// callback and returns the output buffer the callback wrote.
type MockBackend struct {
	mu sync.Mutex

	initialized bool
	initErr     error
	openErr     error

	stream *mockStream
}

// NewMockBackend creates a MockBackend ready for Initialize.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// SetInitError configures Initialize to fail with err.
func (m *MockBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetOpenError configures OpenDuplex to fail with err.
func (m *MockBackend) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

func (m *MockBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *MockBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

func (m *MockBackend) OpenDuplex(params Params, cb StreamCallback) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, fmt.Errorf("device: mock backend not initialized")
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := &mockStream{
		params:   params,
		callback: cb,
	}
	m.stream = s
	return s, nil
}

// Stream returns the most recently opened mock stream, or nil.
func (m *MockBackend) Stream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	return (*MockStream)(m.stream)
}

type mockStream struct {
	mu       sync.Mutex
	params   Params
	callback StreamCallback
	active   bool
	closed   bool
}

func (s *mockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("device: stream closed")
	}
	s.active = true
	return nil
}

func (s *mockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.closed = true
	return nil
}

// MockStream is the test-facing view of an opened mock stream: it lets a
// test drive device periods by hand instead of racing a real clock.
type MockStream mockStream

// Pump synthesizes one device period: input is passed to the engine's
// callback verbatim (the caller decides what "the microphone" produced
// this period) and the resulting output buffer is returned.
func (s *MockStream) Pump(input []float32) []float32 {
	real := (*mockStream)(s)
	real.mu.Lock()
	active := real.active
	cb := real.callback
	channels := real.params.OutputChannels
	frames := real.params.FramesPerBuffer
	real.mu.Unlock()

	output := make([]float32, frames*channels)
	if !active || cb == nil {
		return output
	}
	cb(input, output)
	return output
}

// IsActive reports whether Start has been called without a matching Stop/Close.
func (s *MockStream) IsActive() bool {
	real := (*mockStream)(s)
	real.mu.Lock()
	defer real.mu.Unlock()
	return real.active
}
