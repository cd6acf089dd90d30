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

// Package engine implements the hard-real-time audio callback (spec.md
// §4.2) and its embedded buffer-health state machine (spec.md §4.3). The
// callback is the sole mutator of the delay line's write cursor, the
// sole advancer of its read cursor, and the sole reader of the
// censor-event queue — every other goroutine in the pipeline only ever
// reads the delay line or posts to one of the two queues.
//
// Process must never allocate, block, or take an unbounded amount of
// time: it is expected to run on a realtime-priority thread supplied by
// the audio backend.
package engine

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/explicitlyaudio/silencer/internal/delayline"
	"github.com/explicitlyaudio/silencer/internal/rewrite"
	"github.com/explicitlyaudio/silencer/internal/spscqueue"
	"github.com/explicitlyaudio/silencer/internal/wire"
)

// clipThreshold matches the original engine's per-sample clipping check
// (spec.md §4.9 / SPEC_FULL.md §7 "Peak level / clipping detection").
const clipThreshold = 0.99

// chunkDropWarnEvery logs a warning once per this many consecutive
// failures to hand a chunk to the worker, so a stuck recognizer doesn't
// spam the log every single callback (SPEC_FULL.md §7 "chunk-drop
// warning cadence").
const chunkDropWarnEvery = 100

// BufferState names the three states of the buffer-health controller
// (spec.md §4.3).
type BufferState int32

const (
	Filling BufferState = iota
	Playing
	Starving
)

func (s BufferState) String() string {
	switch s {
	case Filling:
		return "filling"
	case Playing:
		return "playing"
	case Starving:
		return "starving"
	default:
		return "unknown"
	}
}

// hysteresisSeconds is how far the gap must fall below the playback
// delay before Playing exits to Starving (spec.md §4.3).
const hysteresisSeconds = 2.0

// Config configures one Engine instance. All durations are seconds.
type Config struct {
	SampleRate          int
	Channels            int
	ChunkSeconds        float64
	InitialDelaySeconds float64
	Mode                wire.CensorMode
	Logger              *slog.Logger
}

// Engine drives one duplex audio period at a time.
type Engine struct {
	line    *delayline.Line
	chunks  *spscqueue.Queue[wire.ChunkDescriptor]
	censors *spscqueue.Queue[wire.CensorEvent]

	channels                int
	sampleRate              int
	chunkSamples            int64
	initialDelaySamples     int64
	hysteresisSamples       int64
	criticalUnderrunSamples int64
	mode                    wire.CensorMode

	// accumulator collects downmixed mono samples until a full chunk is
	// ready to hand to the worker.
	accumulator  []float32
	accumPos     int
	chunkInFlight atomic.Bool

	state            atomic.Int32
	criticalUnderrun atomic.Bool

	inputLevelBits atomic.Uint32
	peakLevelBits  atomic.Uint32

	droppedTooLate          atomic.Uint64
	droppedQueueFull        atomic.Uint64
	droppedCriticalUnderrun atomic.Uint64
	clippingEvents          atomic.Uint64

	// chunkWaitStreak counts consecutive periods spent waiting for the
	// worker to release a chunk still in flight. Only ever touched from
	// Process, which runs on a single audio thread, so it needs no
	// synchronization.
	chunkWaitStreak int

	log *slog.Logger

	// scratch buffers, sized lazily on first Process call and reused
	// across calls to stay allocation-free on the hot path.
	inCh  [][]float32
	outCh [][]float32
}

// New builds an Engine wired to line, the chunk-descriptor queue the
// worker drains, and the censor-event queue the worker fills.
func New(line *delayline.Line, chunks *spscqueue.Queue[wire.ChunkDescriptor], censors *spscqueue.Queue[wire.CensorEvent], cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		line:                    line,
		chunks:                  chunks,
		censors:                 censors,
		channels:                cfg.Channels,
		sampleRate:              cfg.SampleRate,
		chunkSamples:            int64(cfg.ChunkSeconds * float64(cfg.SampleRate)),
		initialDelaySamples:     int64(cfg.InitialDelaySeconds * float64(cfg.SampleRate)),
		hysteresisSamples:       int64(hysteresisSeconds * float64(cfg.SampleRate)),
		criticalUnderrunSamples: int64(cfg.ChunkSeconds*float64(cfg.SampleRate)) + int64(0.5*float64(cfg.SampleRate)),
		mode:                    cfg.Mode,
		log:                     logger,
	}
	e.accumulator = make([]float32, e.chunkSamples)
	return e
}

// State returns the buffer-health controller's current state.
func (e *Engine) State() BufferState {
	return BufferState(e.state.Load())
}

// CriticalUnderrun reports whether the critical-underrun flag is
// currently raised (spec.md §4.3): while raised, future censor events
// are discarded rather than applied.
func (e *Engine) CriticalUnderrun() bool {
	return e.criticalUnderrun.Load()
}

// InputLevel returns the most recent period's RMS input level (0..1-ish).
func (e *Engine) InputLevel() float32 {
	return math.Float32frombits(e.inputLevelBits.Load())
}

// PeakLevel returns the highest per-sample absolute input value observed.
func (e *Engine) PeakLevel() float32 {
	return math.Float32frombits(e.peakLevelBits.Load())
}

// ClippingEvents returns the running count of input samples observed at
// or above clipThreshold (SPEC_FULL.md §7 clipping detection).
func (e *Engine) ClippingEvents() uint64 {
	return e.clippingEvents.Load()
}

// GapSeconds returns the delay line's current write/read gap in seconds.
func (e *Engine) GapSeconds() float64 {
	if e.sampleRate == 0 {
		return 0
	}
	return float64(e.line.Gap()) / float64(e.sampleRate)
}

// Dropped returns the running counters of rewrites dropped because they
// arrived too late or while a critical underrun was active, and of chunk
// descriptors dropped because the chunk queue was full.
func (e *Engine) Dropped() (tooLate, queueFull, criticalUnderrun uint64) {
	return e.droppedTooLate.Load(), e.droppedQueueFull.Load(), e.droppedCriticalUnderrun.Load()
}

// Process implements device.StreamCallback: input and output are
// interleaved by channel, both e.channels wide, both the same frame
// count.
func (e *Engine) Process(input, output []float32) {
	if e.channels == 0 {
		return
	}
	frames := len(output) / e.channels
	if len(input) < frames*e.channels {
		frames = len(input) / e.channels
	}
	e.ensureScratch(frames)

	e.deinterleave(input, frames)
	e.trackLevels(frames)
	e.accumulateForRecognition(frames)

	// Step 3: write this period's input into the delay line before
	// deciding playback, so the buffer-health check below sees the gap
	// this period's own samples create.
	e.line.WriteBlock(e.inCh)

	canPlay := e.updateBufferHealth()

	if canPlay {
		e.line.ReadBlock(e.outCh)
	} else {
		for ch := range e.outCh {
			clear(e.outCh[ch])
		}
	}
	e.interleaveOutput(output, frames)

	e.drainCensorEvents()
}

func (e *Engine) ensureScratch(frames int) {
	if len(e.inCh) == e.channels && len(e.inCh[0]) == frames {
		return
	}
	e.inCh = make([][]float32, e.channels)
	e.outCh = make([][]float32, e.channels)
	for ch := 0; ch < e.channels; ch++ {
		e.inCh[ch] = make([]float32, frames)
		e.outCh[ch] = make([]float32, frames)
	}
}

func (e *Engine) deinterleave(input []float32, frames int) {
	for ch := 0; ch < e.channels; ch++ {
		dst := e.inCh[ch]
		for i := 0; i < frames; i++ {
			idx := i*e.channels + ch
			if idx < len(input) {
				dst[i] = input[idx]
			} else {
				dst[i] = 0
			}
		}
	}
}

func (e *Engine) interleaveOutput(output []float32, frames int) {
	for ch := 0; ch < e.channels; ch++ {
		src := e.outCh[ch]
		for i := 0; i < frames; i++ {
			idx := i*e.channels + ch
			if idx < len(output) {
				output[idx] = src[i]
			}
		}
	}
}

// trackLevels computes RMS and peak from the first input channel,
// matching the original engine's level metering (spec.md §4.2 step 1).
func (e *Engine) trackLevels(frames int) {
	if e.channels == 0 || frames == 0 {
		return
	}
	first := e.inCh[0]
	var sumSquares float64
	var peak float32
	var clips uint64
	for i := 0; i < frames; i++ {
		v := first[i]
		sumSquares += float64(v) * float64(v)
		mag := abs32(v)
		if mag > peak {
			peak = mag
		}
		if mag >= clipThreshold {
			clips++
		}
	}
	if clips > 0 {
		e.clippingEvents.Add(clips)
	}
	rms := float32(math.Sqrt(sumSquares / float64(frames)))
	e.inputLevelBits.Store(math.Float32bits(rms))
	if peak > e.PeakLevel() {
		e.peakLevelBits.Store(math.Float32bits(peak))
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// accumulateForRecognition downmixes this period to mono and appends it
// to the chunk accumulator, posting a descriptor once a full chunk is
// ready and the worker is idle (spec.md §4.2 step 2).
func (e *Engine) accumulateForRecognition(frames int) {
	scale := float32(1) / float32(e.channels)
	for i := 0; i < frames; i++ {
		if e.accumPos >= len(e.accumulator) {
			break
		}
		var mono float32
		for ch := 0; ch < e.channels; ch++ {
			mono += e.inCh[ch][i] * scale
		}
		e.accumulator[e.accumPos] = mono
		e.accumPos++
	}

	if int64(e.accumPos) < e.chunkSamples {
		return
	}
	if !e.chunkInFlight.CompareAndSwap(false, true) {
		// Worker still busy: the accumulator stays full and samples past
		// the chunk boundary are not added to it. The descriptor posted
		// once the worker is free covers only the chunkSamples ending at
		// the write position of that period; older audio that arrived
		// while waiting is not handed to the recognizer.
		e.chunkWaitStreak++
		if e.chunkWaitStreak%chunkDropWarnEvery == 0 {
			extraSeconds := float64(e.chunkWaitStreak*frames) / float64(e.sampleRate)
			e.log.Warn("waiting for recognizer to finish, buffer growing",
				"periods_waited", e.chunkWaitStreak, "extra_seconds", extraSeconds)
		}
		return
	}
	e.chunkWaitStreak = 0

	desc := wire.ChunkDescriptor{
		ChunkEndPos:     e.line.WritePos(),
		SampleCount:     e.chunkSamples,
		ChannelCount:    e.channels,
		InputSampleRate: e.sampleRate,
	}
	if !e.chunks.Push(desc) {
		e.chunkInFlight.Store(false)
		e.droppedQueueFull.Add(1)
	}
	e.accumPos = 0
}

// ReleaseChunkInFlight clears the "chunk in flight" flag. Called by the
// worker (spec.md §4.4 step 7) once it has consumed one descriptor.
func (e *Engine) ReleaseChunkInFlight() {
	e.chunkInFlight.Store(false)
}

// updateBufferHealth advances the buffer-health state machine and the
// critical-underrun flag from the delay line's current gap (spec.md
// §4.3), returning whether the callback should read from the delay line
// this period or emit silence.
func (e *Engine) updateBufferHealth() bool {
	gap := e.line.Gap()

	switch BufferState(e.state.Load()) {
	case Filling:
		if gap >= e.initialDelaySamples {
			e.state.Store(int32(Playing))
		}
	case Playing:
		if gap < e.initialDelaySamples-e.hysteresisSamples {
			e.state.Store(int32(Starving))
		}
	case Starving:
		if gap >= e.initialDelaySamples {
			e.state.Store(int32(Playing))
		}
	}

	if gap < e.criticalUnderrunSamples {
		e.criticalUnderrun.Store(true)
	} else if gap >= e.initialDelaySamples {
		e.criticalUnderrun.Store(false)
	}

	return BufferState(e.state.Load()) == Playing
}

// drainCensorEvents applies every pending rewrite the worker has queued,
// dropping any whose start has already been played or that arrived
// while critically underrun (spec.md §4.2 step 7, §4.3).
func (e *Engine) drainCensorEvents() {
	readPos := e.line.ReadPos()
	criticalUnderrun := e.criticalUnderrun.Load()

	for {
		event, ok := e.censors.Pop()
		if !ok {
			return
		}

		if event.StartPos < readPos {
			e.droppedTooLate.Add(1)
			continue
		}
		if criticalUnderrun {
			e.droppedCriticalUnderrun.Add(1)
			continue
		}

		e.applyRewrite(event)
	}
}

func (e *Engine) applyRewrite(event wire.CensorEvent) {
	for ch := 0; ch < e.channels; ch++ {
		var err error
		switch event.Mode {
		case wire.ModeReverse:
			err = rewrite.Reverse(e.line, ch, event.StartPos, event.EndPos, e.sampleRate)
		default:
			err = rewrite.Mute(e.line, ch, event.StartPos, event.EndPos, e.sampleRate)
		}
		if err != nil {
			e.droppedTooLate.Add(1)
			return
		}
	}
}
