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

package rewrite

import (
	"testing"

	"github.com/explicitlyaudio/silencer/internal/delayline"
)

func fill(l *delayline.Line, ch int, samples []float32) {
	l.WriteBlock([][]float32{samples})
	_ = ch
}

func TestMute_ZeroesMiddleAndFadesEdges(t *testing.T) {
	const sampleRate = 1000 // fade = 10 samples
	const fade = 10
	l := delayline.New(1, 128)
	samples := make([]float32, 80)
	for i := range samples {
		samples[i] = 1
	}
	fill(l, 0, samples)

	if err := Mute(l, 0, 0, 80, sampleRate); err != nil {
		t.Fatalf("Mute() unexpected err = %v", err)
	}

	out := make([]float32, 80)
	if err := l.ReadAt(0, 0, out); err != nil {
		t.Fatalf("ReadAt() unexpected err = %v", err)
	}

	// Middle should be exactly zero.
	for i := fade; i < len(out)-fade; i++ {
		if out[i] != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, out[i])
		}
	}
	// The leading edge fades out linearly from the original amplitude
	// down toward zero.
	if out[0] != 1 {
		t.Fatalf("out[0] = %v, want 1 (fade-out starts at full amplitude)", out[0])
	}
	for i := 1; i < fade; i++ {
		if out[i] >= out[i-1] {
			t.Fatalf("fade-out not decreasing at %d: %v >= %v", i, out[i], out[i-1])
		}
	}
}

func TestReverse_ReversesSampleOrder(t *testing.T) {
	const sampleRate = 1000
	l := delayline.New(1, 64)
	samples := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	fill(l, 0, samples)

	if err := Reverse(l, 0, 0, int64(len(samples)), sampleRate); err != nil {
		t.Fatalf("Reverse() unexpected err = %v", err)
	}

	out := make([]float32, len(samples))
	if err := l.ReadAt(0, 0, out); err != nil {
		t.Fatalf("ReadAt() unexpected err = %v", err)
	}

	// Ignoring fade scaling, the interior samples should appear in
	// reverse order relative to the input, at half amplitude (spec.md
	// §4.5: reversed speech is written back scaled to 0.5).
	fade := FadeSamples(sampleRate)
	if fade*4 > len(samples) {
		fade = len(samples) / 4
	}
	for i := fade; i < len(samples)-fade; i++ {
		want := samples[len(samples)-1-i] * reverseScale
		if out[i] != want {
			t.Fatalf("out[%d] = %v, want %v (reversed, scaled)", i, out[i], want)
		}
	}
}

func TestReverse_WithFade_MatchesRampAndScaleScenario(t *testing.T) {
	// spec.md §8 scenario 6: a 300ms burst at 48kHz reversed with 10ms
	// fades. First 480 samples ramp up from 0, last 480 ramp down to 0,
	// and the interior is the reversed input scaled by 0.5.
	const sampleRate = 48000
	const burstLen = 3 * sampleRate / 10 // 300ms = 14400 samples
	const fadeLen = 480                  // 10ms @ 48kHz

	l := delayline.New(1, burstLen*2)
	samples := make([]float32, burstLen)
	for i := range samples {
		samples[i] = 1
	}
	fill(l, 0, samples)

	if err := Reverse(l, 0, 0, burstLen, sampleRate); err != nil {
		t.Fatalf("Reverse() unexpected err = %v", err)
	}

	out := make([]float32, burstLen)
	if err := l.ReadAt(0, 0, out); err != nil {
		t.Fatalf("ReadAt() unexpected err = %v", err)
	}

	if fadeLen != FadeSamples(sampleRate) {
		t.Fatalf("FadeSamples(%d) = %d, want %d", sampleRate, FadeSamples(sampleRate), fadeLen)
	}

	// First 480 samples linearly ramp up from 0.
	if out[0] != 0 {
		t.Fatalf("out[0] = %v, want 0 (fade starts silent)", out[0])
	}
	for i := 1; i < fadeLen; i++ {
		if out[i] <= out[i-1] {
			t.Fatalf("fade-in not increasing at %d: %v <= %v", i, out[i], out[i-1])
		}
		if out[i] < 0 || out[i] > reverseScale+1e-6 {
			t.Fatalf("out[%d] = %v, out of expected [0, %v] range", i, out[i], reverseScale)
		}
	}

	// Last 480 samples linearly ramp down to 0.
	last := len(out) - 1
	if out[last] != 0 {
		t.Fatalf("out[%d] = %v, want 0 (fade ends silent)", last, out[last])
	}
	for i := last - fadeLen + 1; i < last; i++ {
		if out[i] <= out[i+1] {
			t.Fatalf("fade-out not decreasing at %d: %v <= %v", i, out[i], out[i+1])
		}
	}

	// Interior is the reversed burst scaled by 0.5, within 1e-6.
	for i := fadeLen; i < burstLen-fadeLen; i++ {
		want := samples[burstLen-1-i] * reverseScale
		if diff := out[i] - want; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("out[%d] = %v, want %v within 1e-6", i, out[i], want)
		}
	}
}

func TestMute_ShortSpanClampsFade(t *testing.T) {
	const sampleRate = 48000 // fade would normally be 480 samples
	l := delayline.New(1, 64)
	samples := []float32{1, 1, 1, 1}
	fill(l, 0, samples)

	if err := Mute(l, 0, 0, 4, sampleRate); err != nil {
		t.Fatalf("Mute() unexpected err = %v", err)
	}
	out := make([]float32, 4)
	if err := l.ReadAt(0, 0, out); err != nil {
		t.Fatalf("ReadAt() unexpected err = %v", err)
	}
	// Should not panic or misbehave on a span shorter than 2*fade; every
	// sample stays within [0, 1].
	for i, v := range out {
		if v < 0 || v > 1 {
			t.Fatalf("out[%d] = %v, out of expected [0,1] range", i, v)
		}
	}
}

func TestMute_OutOfRangeSpanReturnsError(t *testing.T) {
	l := delayline.New(1, 8)
	l.WriteBlock([][]float32{{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}})
	if err := Mute(l, 0, 0, 4, 1000); err == nil {
		t.Fatal("expected error for span outside retained window")
	}
}
