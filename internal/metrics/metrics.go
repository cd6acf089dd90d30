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

// Package metrics accumulates session-wide quality statistics sampled
// from the worker and, via lock-free atomics the engine exposes,
// periodically from the audio callback (spec.md §4.9). It is never
// touched directly from the callback itself — the callback is the one
// thread never allowed to block on a mutex.
package metrics

import "sync"

// maxRecentEvents bounds the ring of recently recorded censorship
// events retained for inspection/reporting.
const maxRecentEvents = 1000

// Event is one censorship decision, kept for the recent-events ring.
type Event struct {
	Word      string
	Timestamp float64
	Censored  bool
	Mode      string
	MultiWord bool
}

// aggregate holds the running totals a Session tracks, protected by
// Session.mu.
type aggregate struct {
	wordsDetected      int
	wordsCensored      int
	wordsSkipped       int
	multiWordDetections int

	rtfSum     float64
	rtfCount   int
	rtfMin     float64
	rtfMax     float64

	bufferSum   float64
	bufferCount int
	bufferMin   float64
	bufferMax   float64

	underrunCount   int
	peakLevel       float32
	clippingEvents  int

	recent []Event
}

// Session is a thread-safe accumulator of quality statistics for one
// listening session. Protected by a single mutex; never touched from the
// audio callback.
type Session struct {
	mu  sync.Mutex
	agg aggregate
}

// NewSession returns a zeroed Session ready to record.
func NewSession() *Session {
	return &Session{agg: aggregate{rtfMin: -1, bufferMin: -1}}
}

// RecordCensorship records one detected word and whether it was
// actually censored (false if skipped due to underrun).
func (s *Session) RecordCensorship(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agg.wordsDetected++
	if ev.Censored {
		s.agg.wordsCensored++
	} else {
		s.agg.wordsSkipped++
	}
	if ev.MultiWord {
		s.agg.multiWordDetections++
	}

	s.agg.recent = append(s.agg.recent, ev)
	if len(s.agg.recent) > maxRecentEvents {
		s.agg.recent = s.agg.recent[len(s.agg.recent)-maxRecentEvents:]
	}
}

// RecordRTF records one real-time-factor sample (processing time /
// audio duration for one chunk; > 1.0 means the worker is falling
// behind).
func (s *Session) RecordRTF(rtf float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agg.rtfSum += rtf
	s.agg.rtfCount++
	if s.agg.rtfMin < 0 || rtf < s.agg.rtfMin {
		s.agg.rtfMin = rtf
	}
	if rtf > s.agg.rtfMax {
		s.agg.rtfMax = rtf
	}
}

// RecordBufferSize records one buffer-fill (in seconds) sample.
func (s *Session) RecordBufferSize(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agg.bufferSum += seconds
	s.agg.bufferCount++
	if s.agg.bufferMin < 0 || seconds < s.agg.bufferMin {
		s.agg.bufferMin = seconds
	}
	if seconds > s.agg.bufferMax {
		s.agg.bufferMax = seconds
	}
}

// RecordUnderrun increments the buffer-underrun counter.
func (s *Session) RecordUnderrun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg.underrunCount++
}

// RecordLevel updates the session's peak input level if level exceeds
// the current peak.
func (s *Session) RecordLevel(level float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.agg.peakLevel {
		s.agg.peakLevel = level
	}
}

// RecordSkipped adds n to the skipped counter without counting new
// detections. The pipeline feeds it the number of chunks the engine
// dropped because the recognition queue was full — distinct from the
// words RecordCensorship already counted as censored at the moment the
// worker matched them.
func (s *Session) RecordSkipped(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg.wordsSkipped += n
}

// RecordClipping increments the clipping-events counter.
func (s *Session) RecordClipping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg.clippingEvents++
}

// Snapshot is a point-in-time, copied-out view of a Session.
type Snapshot struct {
	WordsDetected       int
	WordsCensored       int
	WordsSkipped        int
	MultiWordDetections int

	RTFAvg float64
	RTFMin float64
	RTFMax float64

	BufferAvg float64
	BufferMin float64
	BufferMax float64

	UnderrunCount  int
	PeakLevel      float32
	ClippingEvents int

	RecentEvents []Event

	QualityScore float64
}

// Snapshot returns a copied-out view of the session's current state,
// including the derived quality score (spec.md §4.9).
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		WordsDetected:       s.agg.wordsDetected,
		WordsCensored:       s.agg.wordsCensored,
		WordsSkipped:        s.agg.wordsSkipped,
		MultiWordDetections: s.agg.multiWordDetections,
		UnderrunCount:       s.agg.underrunCount,
		PeakLevel:           s.agg.peakLevel,
		ClippingEvents:      s.agg.clippingEvents,
		RecentEvents:        append([]Event(nil), s.agg.recent...),
	}
	if s.agg.rtfCount > 0 {
		snap.RTFAvg = s.agg.rtfSum / float64(s.agg.rtfCount)
		snap.RTFMin = s.agg.rtfMin
		snap.RTFMax = s.agg.rtfMax
	}
	if s.agg.bufferCount > 0 {
		snap.BufferAvg = s.agg.bufferSum / float64(s.agg.bufferCount)
		snap.BufferMin = s.agg.bufferMin
		snap.BufferMax = s.agg.bufferMax
	}
	snap.QualityScore = qualityScore(s.agg)
	return snap
}

// qualityScore derives a 0-100 score from agg: skip rate penalizes up to
// 30 points, RTF above 1.0 up to 20, underruns up to 20, clipping up to
// 15, and multi-word detections bonus up to 5 (spec.md §4.9).
func qualityScore(agg aggregate) float64 {
	score := 100.0

	if agg.wordsDetected > 0 {
		skipRate := float64(agg.wordsSkipped) / float64(agg.wordsDetected)
		score -= skipRate * 30.0
	}

	if agg.rtfCount > 0 {
		avgRTF := agg.rtfSum / float64(agg.rtfCount)
		if avgRTF > 1.0 {
			penalty := (avgRTF - 1.0) * 20.0
			if penalty > 20.0 {
				penalty = 20.0
			}
			score -= penalty
		}
	}

	if agg.underrunCount > 0 {
		penalty := float64(agg.underrunCount) * 5.0
		if penalty > 20.0 {
			penalty = 20.0
		}
		score -= penalty
	}

	if agg.clippingEvents > 0 {
		penalty := float64(agg.clippingEvents) * 2.0
		if penalty > 15.0 {
			penalty = 15.0
		}
		score -= penalty
	}

	if agg.wordsDetected > 0 {
		multiWordRate := float64(agg.multiWordDetections) / float64(agg.wordsDetected)
		score += multiWordRate * 5.0
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
