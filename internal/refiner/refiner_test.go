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

package refiner

import (
	"math"
	"testing"
)

const testSampleRate = 48000

// silentThenLoud builds a mono buffer that is silence for the first half
// and a loud alternating-sign tone for the second half, so energy and
// zero-crossing analysis has an unambiguous boundary to find.
func silentThenLoud(totalSamples, transitionAt int) []float32 {
	audio := make([]float32, totalSamples)
	for i := transitionAt; i < totalSamples; i++ {
		if i%2 == 0 {
			audio[i] = 1
		} else {
			audio[i] = -1
		}
	}
	return audio
}

func TestFindSpeechRegions_DetectsLoudRegion(t *testing.T) {
	audio := silentThenLoud(testSampleRate, testSampleRate/2)
	regions := FindSpeechRegions(audio, testSampleRate)
	if len(regions) == 0 {
		t.Fatal("expected at least one speech region")
	}
	last := regions[len(regions)-1]
	if last.End <= last.Start {
		t.Fatalf("region has non-positive duration: %+v", last)
	}
	// The detected region should start reasonably close to the true
	// transition at 0.5s, not at the very beginning of the buffer.
	if last.Start < 0.3 {
		t.Fatalf("region.Start = %v, want >= 0.3 (near the 0.5s transition)", last.Start)
	}
}

func TestRefineWord_MovesTimestampTowardEnergy(t *testing.T) {
	audio := silentThenLoud(testSampleRate*2, testSampleRate)
	// A recognizer guessed the word at 0.4s, well before the actual
	// energy onset at 1.0s but within the 0.8s search radius.
	word := Word{Text: "test", Start: 0.4, End: 0.5}
	RefineWord(&word, audio, testSampleRate)

	if word.Start < 0.5 {
		t.Fatalf("refined Start = %v, want closer to the actual onset near 1.0s", word.Start)
	}
	if word.End <= word.Start {
		t.Fatalf("refined End (%v) <= Start (%v)", word.End, word.Start)
	}
}

func TestRefineWord_NoSpeechFallsBackToOriginal(t *testing.T) {
	audio := make([]float32, testSampleRate) // pure silence
	word := Word{Text: "test", Start: 0.2, End: 0.3}
	orig := word
	RefineWord(&word, audio, testSampleRate)
	if word.Start != orig.Start || word.End != orig.End {
		t.Fatalf("expected fallback to original timestamps, got %+v want %+v", word, orig)
	}
}

func TestRefineWord_ClampsExcessiveDuration(t *testing.T) {
	audio := silentThenLoud(testSampleRate*3, testSampleRate/2)
	word := Word{Text: "test", Start: 0.0, End: 0.1}
	RefineWord(&word, audio, testSampleRate)
	if word.End-word.Start > maxWordDuration+1e-9 {
		t.Fatalf("refined duration = %v, want <= %v", word.End-word.Start, maxWordDuration)
	}
}

func TestEnergyOf_ZeroForOutOfRange(t *testing.T) {
	audio := make([]float32, 10)
	if got := energyOf(audio, -1, 5); got != 0 {
		t.Fatalf("energyOf() = %v, want 0", got)
	}
	if got := energyOf(audio, 5, 10); got != 0 {
		t.Fatalf("energyOf() = %v, want 0", got)
	}
}

func TestZeroCrossingRate_CountsSignFlips(t *testing.T) {
	audio := []float32{1, -1, 1, -1, 1, -1}
	zc := zeroCrossingRate(audio, 0, len(audio))
	if zc <= 0 {
		t.Fatalf("zeroCrossingRate() = %v, want > 0 for alternating signal", zc)
	}
	flat := []float32{1, 1, 1, 1, 1, 1}
	if got := zeroCrossingRate(flat, 0, len(flat)); got != 0 {
		t.Fatalf("zeroCrossingRate() = %v, want 0 for constant signal", got)
	}
}

func TestAbs(t *testing.T) {
	if abs(-5) != 5 || abs(5) != 5 || abs(0) != 0 {
		t.Fatal("abs() incorrect")
	}
}

func TestClampInt(t *testing.T) {
	if clampInt(5, 0, 10) != 5 {
		t.Fatal("clampInt() should pass through in-range values")
	}
	if clampInt(-1, 0, 10) != 0 {
		t.Fatal("clampInt() should clamp below range")
	}
	if clampInt(20, 0, 10) != 10 {
		t.Fatal("clampInt() should clamp above range")
	}
}

func TestMinWordDuration_IsPositive(t *testing.T) {
	if minWordDuration <= 0 || math.IsNaN(minWordDuration) {
		t.Fatalf("minWordDuration = %v, want positive", minWordDuration)
	}
}
