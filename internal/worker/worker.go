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

// Package worker implements the recognition loop that pulls chunk
// descriptors off the SPSC queue the audio callback fills, pulls the
// corresponding samples out of the delay line, recognizes, refines,
// aligns, and scans them for profanity, and pushes any resulting censor
// events onto the SPSC queue the audio callback drains (spec.md §4.4).
//
// This loop runs on its own goroutine, off the realtime audio thread,
// and is the only place in the pipeline allowed to block, allocate, or
// take non-trivial time per iteration.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/explicitlyaudio/silencer/internal/aligner"
	"github.com/explicitlyaudio/silencer/internal/delayline"
	"github.com/explicitlyaudio/silencer/internal/eventbus"
	"github.com/explicitlyaudio/silencer/internal/profanity"
	"github.com/explicitlyaudio/silencer/internal/recognizer"
	"github.com/explicitlyaudio/silencer/internal/refiner"
	"github.com/explicitlyaudio/silencer/internal/spscqueue"
	"github.com/explicitlyaudio/silencer/internal/wire"
)

// defaultRecognizerSampleRate is used when Deps.RecognizerSampleRate is
// left zero.
const defaultRecognizerSampleRate = 16000

// idleSleep is how long the loop pauses when the input queue is empty,
// mirroring the polling cadence of the recognition thread this package
// is grounded on.
const idleSleep = 5 * time.Millisecond

// Deps bundles everything the worker needs to run one recognition
// cycle, so Worker itself stays a thin loop driver.
type Deps struct {
	Line       *delayline.Line
	Chunks     *spscqueue.Queue[wire.ChunkDescriptor]
	Censors    *spscqueue.Queue[wire.CensorEvent]
	Recognizer recognizer.Recognizer
	Aligner    *aligner.Aligner
	Lexicon    *profanity.Lexicon
	Events     *eventbus.Publisher // optional; nil disables UI events
	Mode       wire.CensorMode
	// PadBefore/PadAfter widen a detected span asymmetrically to
	// compensate for the recognizer's tendency to emit late timestamps
	// (spec.md §4.4 defaults: 0.4s / 0.1s).
	PadBefore float64
	PadAfter  float64
	// RecognizerSampleRate is the PCM rate the recognizer expects (spec.md
	// §6's recognizer_sample_rate knob). Chunks arriving at a different
	// device sample rate are linearly resampled before recognition. Zero
	// means defaultRecognizerSampleRate.
	RecognizerSampleRate int
	// OnSpan, if set, is called for every censor event queued, independent
	// of Events — the per-song report writer subscribes here rather than
	// requiring a NATS connection just to log spans to disk.
	OnSpan func(label string, startSec, endSec float64)
	// OnCensorship, if set, is called alongside OnSpan for every censor
	// event queued, carrying whether the match spanned more than one
	// word — the quality-metrics session subscribes here (spec.md §4.9
	// words_censored/multi_word_detections).
	OnCensorship func(label string, multiWord bool)
	// OnChunkTiming, if set, is called once per chunk, whatever the
	// outcome (including dropped chunks and recognizer errors), with its
	// real-time factor (wall-clock processing time over chunk audio
	// duration) — the quality-metrics session subscribes here (spec.md
	// §4.9 rolling_rtf).
	OnChunkTiming func(rtf float64)
	// OnChunkDone, if set, is called once per chunk after processing
	// finishes (success, decode failure, or empty result alike) so the
	// engine can clear its chunk-in-flight flag (spec.md §4.4 step 7).
	OnChunkDone func()
	Logger      *slog.Logger
}

// Worker drains chunk descriptors, recognizes, aligns, matches
// profanity, and emits censor events.
type Worker struct {
	deps Deps
	log  *slog.Logger
}

// New builds a Worker from deps. deps.Logger may be nil.
func New(deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.RecognizerSampleRate <= 0 {
		deps.RecognizerSampleRate = defaultRecognizerSampleRate
	}
	return &Worker{deps: deps, log: logger}
}

// Run drains chunks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk, ok := w.deps.Chunks.Pop()
		if !ok {
			time.Sleep(idleSleep)
			continue
		}
		w.processChunk(ctx, chunk)
	}
}

func (w *Worker) processChunk(ctx context.Context, chunk wire.ChunkDescriptor) {
	if w.deps.OnChunkDone != nil {
		defer w.deps.OnChunkDone()
	}

	processStart := time.Now()
	if w.deps.OnChunkTiming != nil {
		defer func() {
			if chunk.InputSampleRate > 0 {
				chunkSeconds := float64(chunk.SampleCount) / float64(chunk.InputSampleRate)
				if chunkSeconds > 0 {
					w.deps.OnChunkTiming(time.Since(processStart).Seconds() / chunkSeconds)
				}
			}
		}()
	}

	start, _ := chunk.Span()

	perChannel := make([][]float32, chunk.ChannelCount)
	for ch := range perChannel {
		perChannel[ch] = make([]float32, chunk.SampleCount)
	}
	if err := w.deps.Line.CopyRange(start, chunk.SampleCount, perChannel); err != nil {
		w.log.Warn("dropping chunk, samples no longer retained", "error", err)
		return
	}

	mono := downmix(perChannel)
	mono = resampleLinear(mono, chunk.InputSampleRate, w.deps.RecognizerSampleRate)

	words, _, err := w.deps.Recognizer.Accept(ctx, mono, w.deps.RecognizerSampleRate)
	if err != nil {
		w.log.Warn("recognizer error", "error", err)
		return
	}

	var aligned []aligner.Word
	if len(words) == 0 {
		// Spec §4.4 step 5: silence from the recognizer doesn't mean
		// silence in the song. If the aligner is still locked onto the
		// lyric sheet, predict the words this stretch probably contains
		// instead of skipping the chunk outright.
		if !w.deps.Aligner.Locked() {
			return
		}
		chunkSeconds := float64(chunk.SampleCount) / float64(chunk.InputSampleRate)
		aligned = w.deps.Aligner.Predict(chunkSeconds)
		if len(aligned) == 0 {
			return
		}
	} else {
		refined := make([]refiner.Word, len(words))
		for i, r := range words {
			refined[i] = refiner.Word{Text: r.Text, Start: r.StartTime, End: r.EndTime}
			refiner.RefineWord(&refined[i], mono, w.deps.RecognizerSampleRate)
		}

		aligned = make([]aligner.Word, len(refined))
		for i, r := range refined {
			aligned[i] = aligner.Word{Text: r.Text, Start: r.Start, End: r.End, Confidence: words[i].Confidence}
		}
		chunkStartSeconds := float64(start) / float64(chunk.InputSampleRate)
		aligned = w.deps.Aligner.Align(aligned, chunkStartSeconds)
	}

	profanityWords := make([]profanity.Word, len(aligned))
	for i, a := range aligned {
		profanityWords[i] = profanity.Word{Text: a.Text, StartTime: a.Start, EndTime: a.End}
	}

	spans := w.deps.Lexicon.Detect(profanityWords)
	chunkEnd := start + chunk.SampleCount
	for _, span := range spans {
		paddedStart := span.StartTime - w.deps.PadBefore
		paddedEnd := span.EndTime + w.deps.PadAfter
		startSample := start + int64(paddedStart*float64(chunk.InputSampleRate))
		endSample := start + int64(paddedEnd*float64(chunk.InputSampleRate))

		// Clamp to the chunk's own boundaries (spec.md §4.4 step 6).
		if startSample < start {
			startSample = start
		}
		if endSample > chunkEnd {
			endSample = chunkEnd
		}
		if endSample <= startSample {
			continue
		}

		event := wire.NewCensorEvent(startSample, endSample, w.deps.Mode, span.Text)
		if !w.deps.Censors.Push(event) {
			w.log.Warn("censor queue full, dropping event", "label", span.Text)
		}

		if w.deps.Events != nil {
			w.deps.Events.PublishCensorEvent(eventbus.CensorEventDetail{
				Label:    span.Text,
				Mode:     w.deps.Mode.String(),
				StartSec: span.StartTime,
				EndSec:   span.EndTime,
			})
		}
		if w.deps.OnSpan != nil {
			w.deps.OnSpan(span.Text, span.StartTime, span.EndTime)
		}
		if w.deps.OnCensorship != nil {
			w.deps.OnCensorship(span.Text, span.EndWordIdx > span.StartWordIdx)
		}
	}
}

// downmix averages all channels into one mono buffer of the same
// length.
func downmix(perChannel [][]float32) []float32 {
	if len(perChannel) == 1 {
		return perChannel[0]
	}
	n := len(perChannel[0])
	mono := make([]float32, n)
	scale := float32(1) / float32(len(perChannel))
	for _, ch := range perChannel {
		for i, v := range ch {
			mono[i] += v * scale
		}
	}
	return mono
}

// resampleLinear resamples mono from fromRate to toRate using linear
// interpolation. It is a no-op if the rates already match.
func resampleLinear(mono []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || len(mono) == 0 {
		return mono
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(mono)) / ratio)
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(mono) {
			out[i] = mono[idx]*float32(1-frac) + mono[idx+1]*float32(frac)
		} else {
			out[i] = mono[idx]
		}
	}
	return out
}
