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

// Package recognizer defines the boundary between the pipeline and
// whatever external speech-recognition engine actually turns PCM audio
// into words (spec.md §4.4, §9). The pipeline never talks to a specific
// engine directly — it depends on the Recognizer interface, so a real
// engine binding (a cgo wrapper, a subprocess, an HTTP call to a model
// server) can be dropped in without touching the worker loop.
package recognizer

import "context"

// Result is one word-level hypothesis, with a timestamp still relative
// to the start of the chunk that was submitted.
type Result struct {
	Text       string
	StartTime  float64
	EndTime    float64
	Confidence float64
}

// Recognizer turns 16kHz-or-so mono PCM into timestamped words. Accept
// may be called with successive chunks of the same utterance; Final
// reports whether the returned words are a settled result or a partial
// hypothesis that may still change.
type Recognizer interface {
	// Accept feeds one chunk of mono float32 PCM, sampled at sampleRate,
	// and returns any words it can report so far.
	Accept(ctx context.Context, pcm []float32, sampleRate int) (words []Result, final bool, err error)

	// Reset clears any accumulated utterance state, e.g. after a seek.
	Reset()

	// Close releases any underlying engine resources.
	Close() error
}

// Fake is a Recognizer that returns a scripted, fixed sequence of
// results regardless of input, for exercising the worker loop without a
// real engine binding.
type Fake struct {
	Scripted []FakeChunk
	pos      int
}

// FakeChunk is one canned response Fake.Accept returns in sequence.
type FakeChunk struct {
	Words []Result
	Final bool
	Err   error
}

// Accept ignores pcm and sampleRate and returns the next scripted
// response, looping back to silence once the script is exhausted.
func (f *Fake) Accept(_ context.Context, _ []float32, _ int) ([]Result, bool, error) {
	if f.pos >= len(f.Scripted) {
		return nil, true, nil
	}
	c := f.Scripted[f.pos]
	f.pos++
	return c.Words, c.Final, c.Err
}

// Reset rewinds the script to the beginning.
func (f *Fake) Reset() {
	f.pos = 0
}

// Close is a no-op for Fake.
func (f *Fake) Close() error {
	return nil
}
