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

// Package delayline implements the fixed-latency ring buffer that sits
// between the audio input and the audio output of the realtime callback
// (spec.md §4.1). The engine writes each incoming period into the line and
// reads the period that fell out the far end for playback; the recognition
// worker reads arbitrary spans out of the middle to run recognition on, and
// the censor-event consumer rewrites spans in place before they are read
// for playback.
//
// Positions are absolute, monotonically increasing sample counters, never
// wrapped. Wraparound only happens at the point a position is turned into
// a slice index, via modulo capacity. Keeping positions unwrapped lets
// Gap and delay-bound arithmetic subtract two positions directly instead
// of having to special-case wraparound at every comparison.
package delayline

import (
	"fmt"
	"sync/atomic"
)

// ErrOutOfRange is returned when a requested span has already been
// overwritten by the writer, or reaches ahead of what has been written.
var ErrOutOfRange = fmt.Errorf("delayline: requested span outside retained window")

// Line is a lock-free delay line: one writer (the audio callback's input
// half), one reader (the audio callback's output half), plus out-of-band
// random-access reads and in-place rewrites from the recognition worker
// and censor-event consumer. Capacity is fixed at construction.
//
// Thread safety: WriteBlock and ReadBlock are producer/reader-only
// (audio callback thread) — a caller that wants to hold the read cursor
// still for a period simply skips calling ReadBlock and leaves the
// output silent. ReadAt, StoreAt, and CopyRange may be called
// concurrently from other goroutines but the caller must ensure the span
// they touch is not concurrently being overwritten by the writer — the
// buffer's capacity should be sized so recognition and rewrite complete
// well inside the retention window (spec.md §4.1 invariant 1).
type Line struct {
	channels int
	capacity int64

	writePos atomic.Int64
	readPos  atomic.Int64

	// data is channel-major: data[ch][idx].
	data [][]float32
}

// New creates a delay line with the given channel count and capacity in
// samples per channel. capacitySamples must be > 0.
func New(channels, capacitySamples int) *Line {
	if channels <= 0 {
		channels = 1
	}
	if capacitySamples <= 0 {
		capacitySamples = 1
	}
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, capacitySamples)
	}
	return &Line{
		channels: channels,
		capacity: int64(capacitySamples),
		data:     data,
	}
}

// Channels returns the configured channel count.
func (l *Line) Channels() int { return l.channels }

// Capacity returns the retention window in samples per channel.
func (l *Line) Capacity() int64 { return l.capacity }

// WritePos returns the absolute position one past the last sample written.
func (l *Line) WritePos() int64 { return l.writePos.Load() }

// ReadPos returns the absolute position one past the last sample released
// for playback.
func (l *Line) ReadPos() int64 { return l.readPos.Load() }

// Gap reports how many samples of delay currently sit between the write
// and read cursors. It is always in [0, Capacity()] under correct use.
func (l *Line) Gap() int64 {
	return l.writePos.Load() - l.readPos.Load()
}

func (l *Line) index(pos int64) int64 {
	idx := pos % l.capacity
	if idx < 0 {
		idx += l.capacity
	}
	return idx
}

// WriteBlock appends one interleaved-by-channel period of input samples,
// one slice per channel, all the same length. It never blocks and never
// allocates. Audio callback thread only.
func (l *Line) WriteBlock(perChannel [][]float32) {
	if len(perChannel) != l.channels {
		return
	}
	n := len(perChannel[0])
	pos := l.writePos.Load()
	for ch := 0; ch < l.channels; ch++ {
		src := perChannel[ch]
		for i := 0; i < n; i++ {
			l.data[ch][l.index(pos+int64(i))] = src[i]
		}
	}
	l.writePos.Store(pos + int64(n))
}

// ReadBlock copies n samples starting at the current read cursor into dst
// (one slice per channel, pre-sized to n) and advances the read cursor by
// n. Audio callback thread only.
func (l *Line) ReadBlock(dst [][]float32) {
	if len(dst) != l.channels {
		return
	}
	n := len(dst[0])
	pos := l.readPos.Load()
	for ch := 0; ch < l.channels; ch++ {
		out := dst[ch]
		for i := 0; i < n; i++ {
			out[i] = l.data[ch][l.index(pos+int64(i))]
		}
	}
	l.readPos.Store(pos + int64(n))
}

// ReadAt copies n samples of channel ch starting at absolute position
// start into dst (len(dst) >= n). Returns ErrOutOfRange if the span has
// already fallen out of the retention window or reaches past what has
// been written.
func (l *Line) ReadAt(ch int, start int64, dst []float32) error {
	n := int64(len(dst))
	if err := l.checkRange(start, n); err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		dst[i] = l.data[ch][l.index(start+i)]
	}
	return nil
}

// StoreAt overwrites n samples of channel ch starting at absolute
// position start with the contents of src. Used by the censor-event
// consumer to mute or reverse a span in place before it reaches the read
// cursor.
func (l *Line) StoreAt(ch int, start int64, src []float32) error {
	n := int64(len(src))
	if err := l.checkRange(start, n); err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		l.data[ch][l.index(start+i)] = src[i]
	}
	return nil
}

// CopyRange copies [start, start+n) of every channel into dst, a
// per-channel slice of slices already sized to n. Used by the recognition
// worker to pull a chunk out for downstream processing.
func (l *Line) CopyRange(start, n int64, dst [][]float32) error {
	if err := l.checkRange(start, n); err != nil {
		return err
	}
	if len(dst) != l.channels {
		return fmt.Errorf("delayline: dst has %d channels, want %d", len(dst), l.channels)
	}
	for ch := 0; ch < l.channels; ch++ {
		for i := int64(0); i < n; i++ {
			dst[ch][i] = l.data[ch][l.index(start+i)]
		}
	}
	return nil
}

func (l *Line) checkRange(start, n int64) error {
	if n <= 0 {
		return nil
	}
	writePos := l.writePos.Load()
	oldest := writePos - l.capacity
	if start < oldest || start+n > writePos {
		return ErrOutOfRange
	}
	return nil
}

// Reset zeroes the buffer and both cursors. Not safe to call while the
// audio callback is running.
func (l *Line) Reset() {
	for ch := range l.data {
		for i := range l.data[ch] {
			l.data[ch][i] = 0
		}
	}
	l.writePos.Store(0)
	l.readPos.Store(0)
}
