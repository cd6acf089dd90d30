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

package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/explicitlyaudio/silencer/internal/aligner"
	"github.com/explicitlyaudio/silencer/internal/delayline"
	"github.com/explicitlyaudio/silencer/internal/profanity"
	"github.com/explicitlyaudio/silencer/internal/recognizer"
	"github.com/explicitlyaudio/silencer/internal/spscqueue"
	"github.com/explicitlyaudio/silencer/internal/wire"
)

func newTestLexicon(t *testing.T) *profanity.Lexicon {
	t.Helper()
	lex, err := profanity.LoadLexicon(strings.NewReader("damn\n"))
	if err != nil {
		t.Fatalf("LoadLexicon() unexpected err = %v", err)
	}
	return lex
}

func TestWorker_ProcessChunkEmitsCensorEventForProfaneWord(t *testing.T) {
	const sampleRate = 16000
	line := delayline.New(1, sampleRate*2)
	samples := make([]float32, sampleRate)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}
	line.WriteBlock([][]float32{samples})

	chunks := spscqueue.New[wire.ChunkDescriptor](4)
	censors := spscqueue.New[wire.CensorEvent](4)

	fake := &recognizer.Fake{Scripted: []recognizer.FakeChunk{
		{Words: []recognizer.Result{{Text: "damn", StartTime: 0.1, EndTime: 0.3, Confidence: 0.9}}, Final: true},
	}}

	w := New(Deps{
		Line:       line,
		Chunks:     chunks,
		Censors:    censors,
		Recognizer: fake,
		Aligner:    aligner.New(),
		Lexicon:    newTestLexicon(t),
		Mode:       wire.ModeMute,
	})

	chunk := wire.ChunkDescriptor{
		ChunkEndPos:     int64(sampleRate),
		SampleCount:     int64(sampleRate),
		ChannelCount:    1,
		InputSampleRate: sampleRate,
	}
	chunks.Push(chunk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	var got wire.CensorEvent
	deadline := time.After(2 * time.Second)
	for {
		if v, ok := censors.Pop(); ok {
			got = v
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("timed out waiting for censor event")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	if got.Label() != "damn" {
		t.Fatalf("event.Label() = %q, want %q", got.Label(), "damn")
	}
	if got.Mode != wire.ModeMute {
		t.Fatalf("event.Mode = %v, want %v", got.Mode, wire.ModeMute)
	}
	if got.StartPos < chunk.ChunkEndPos-chunk.SampleCount || got.EndPos > chunk.ChunkEndPos {
		t.Fatalf("event span [%d,%d) outside chunk [%d,%d)", got.StartPos, got.EndPos, chunk.ChunkEndPos-chunk.SampleCount, chunk.ChunkEndPos)
	}
}

func TestWorker_PredictsFromLockedAlignerWhenRecognizerReturnsNoWords(t *testing.T) {
	const sampleRate = 1000
	line := delayline.New(1, sampleRate*4)
	line.WriteBlock([][]float32{make([]float32, sampleRate*2)})

	chunks := spscqueue.New[wire.ChunkDescriptor](4)
	censors := spscqueue.New[wire.CensorEvent](4)

	// Lock the aligner onto a lyric sheet the same way
	// TestAligner_LocksOnRepeatedStrongMatches does, so Predict has
	// somewhere to draw words from once the recognizer goes quiet.
	al := aligner.New()
	al.SetLyrics("never gonna give you up you are so damn amazing")
	al.Align([]aligner.Word{
		{Text: "never", Start: 0.0, End: 0.2, Confidence: 0.9},
		{Text: "gonna", Start: 0.2, End: 0.4, Confidence: 0.9},
		{Text: "give", Start: 0.4, End: 0.6, Confidence: 0.9},
	}, 0.0)
	al.Align([]aligner.Word{
		{Text: "you", Start: 0.6, End: 0.8, Confidence: 0.9},
		{Text: "up", Start: 0.8, End: 1.0, Confidence: 0.9},
	}, 0.7)
	if !al.Locked() {
		t.Fatal("test setup: expected the aligner to be locked before exercising the worker")
	}

	fake := &recognizer.Fake{Scripted: []recognizer.FakeChunk{
		{Words: nil, Final: true},
	}}

	w := New(Deps{
		Line:                 line,
		Chunks:               chunks,
		Censors:              censors,
		Recognizer:           fake,
		Aligner:              al,
		Lexicon:              newTestLexicon(t),
		Mode:                 wire.ModeMute,
		RecognizerSampleRate: sampleRate,
	})

	chunk := wire.ChunkDescriptor{
		ChunkEndPos:     int64(sampleRate * 2),
		SampleCount:     int64(sampleRate * 2),
		ChannelCount:    1,
		InputSampleRate: sampleRate,
	}
	chunks.Push(chunk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	var got wire.CensorEvent
	deadline := time.After(2 * time.Second)
	for {
		if v, ok := censors.Pop(); ok {
			got = v
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("timed out waiting for a censor event from a predicted word")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	if got.Label() != "damn" {
		t.Fatalf("event.Label() = %q, want %q", got.Label(), "damn")
	}
}

func TestDownmix_SingleChannelPassthrough(t *testing.T) {
	in := [][]float32{{1, 2, 3}}
	out := downmix(in)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("downmix() = %v, want passthrough", out)
	}
}

func TestDownmix_AveragesChannels(t *testing.T) {
	in := [][]float32{{1, 1}, {-1, 3}}
	out := downmix(in)
	if out[0] != 0 || out[1] != 2 {
		t.Fatalf("downmix() = %v, want [0 2]", out)
	}
}

func TestResampleLinear_NoOpWhenRatesMatch(t *testing.T) {
	in := []float32{1, 2, 3}
	out := resampleLinear(in, 16000, 16000)
	if len(out) != 3 {
		t.Fatalf("resampleLinear() len = %d, want 3", len(out))
	}
}

func TestResampleLinear_DownsamplesToExpectedLength(t *testing.T) {
	in := make([]float32, 48000)
	out := resampleLinear(in, 48000, 16000)
	if out == nil || len(out) != 16000 {
		t.Fatalf("resampleLinear() len = %d, want 16000", len(out))
	}
}
