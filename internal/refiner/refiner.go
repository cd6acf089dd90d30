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

// Package refiner sharpens the coarse word timestamps returned by a
// recognizer using short-time energy and zero-crossing-rate analysis of
// the underlying audio (spec.md §4.6). Recognizers tuned for speech
// often clump every word near the start of its chunk; refinement finds
// where the actual speech energy sits and moves the boundary there.
package refiner

import "math"

// Tuning parameters, carried over unchanged from the reference detector
// that motivated this package: they were chosen for vocals mixed with
// instrumentation, not clean speech.
const (
	energyThreshold = 0.001
	zcThreshold     = 0.1
	windowSize      = 480   // 10ms @ 48kHz
	searchRadius    = 38400 // 0.8s @ 48kHz
	minWordDuration = 0.05
	maxWordDuration = 2.0
)

// Word is a timestamped token whose boundaries this package refines in
// place.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Region is a contiguous span, in seconds, judged to contain speech.
type Region struct {
	Start float64
	End   float64
}

func energyOf(audio []float32, start, length int) float32 {
	if start < 0 || start+length > len(audio) {
		return 0
	}
	var sum float32
	for i := start; i < start+length; i++ {
		sum += audio[i] * audio[i]
	}
	return float32(math.Sqrt(float64(sum / float32(length))))
}

func zeroCrossingRate(audio []float32, start, length int) float32 {
	if start < 0 || start+length > len(audio) {
		return 0
	}
	crossings := 0
	for i := start + 1; i < start+length; i++ {
		if (audio[i] >= 0 && audio[i-1] < 0) || (audio[i] < 0 && audio[i-1] >= 0) {
			crossings++
		}
	}
	return float32(crossings) / float32(length)
}

func findBestBoundary(audio []float32, centerSample, radius, sampleRate int, findStart bool) float64 {
	var searchStart, searchEnd int
	if findStart {
		searchStart = max(0, centerSample-radius)
		searchEnd = centerSample
	} else {
		searchStart = centerSample
		searchEnd = min(len(audio), centerSample+radius)
	}

	bestScore := float32(-1.0)
	bestSample := centerSample
	step := windowSize / 4

	for i := searchStart; i < searchEnd; i += step {
		if i < windowSize || i+windowSize >= len(audio) {
			continue
		}
		before := energyOf(audio, i-windowSize, windowSize)
		after := energyOf(audio, i, windowSize)
		gradient := float32(math.Abs(float64(after - before)))

		var score float32
		if findStart {
			score = after - before
		} else {
			score = before - after
		}

		if score > bestScore && gradient > energyThreshold {
			bestScore = score
			bestSample = i
		}
	}

	return float64(bestSample) / float64(sampleRate)
}

// searchForSpeech looks for the energy region closest to [coarseStart,
// coarseEnd] within a search radius, then refines that region's edges.
// It biases toward regions earlier than the recognizer's guess, since
// recognizers tuned for latency tend to timestamp speech late.
func searchForSpeech(audio []float32, coarseStart, coarseEnd float64, sampleRate int) (float64, float64) {
	startSample := clampInt(int(coarseStart*float64(sampleRate)), 0, len(audio)-1)
	endSample := clampInt(int(coarseEnd*float64(sampleRate)), startSample, len(audio))

	searchStart := max(0, startSample-searchRadius)
	searchEnd := min(len(audio), endSample+searchRadius)

	type region struct{ start, end int }
	var regions []region
	inSpeech := false
	regionStart := 0

	for i := searchStart; i < searchEnd; i += windowSize {
		energy := energyOf(audio, i, windowSize)
		zc := zeroCrossingRate(audio, i, windowSize)
		isSpeech := energy > energyThreshold && zc > zcThreshold

		if isSpeech && !inSpeech {
			regionStart = i
			inSpeech = true
		} else if !isSpeech && inSpeech {
			regions = append(regions, region{regionStart, i})
			inSpeech = false
		}
	}
	if inSpeech {
		regions = append(regions, region{regionStart, searchEnd})
	}

	if len(regions) == 0 {
		return coarseStart, coarseEnd
	}

	center := (startSample + endSample) / 2
	best := regions[0]
	bestDist := math.MaxInt64
	for _, r := range regions {
		regionCenter := (r.start + r.end) / 2
		dist := abs(regionCenter - center)
		if regionCenter < center {
			dist = int(float64(dist) * 0.8)
		}
		if dist < bestDist {
			bestDist = dist
			best = r
		}
	}

	refinedStart := findBestBoundary(audio, best.start, windowSize*4, sampleRate, true)
	refinedEnd := findBestBoundary(audio, best.end, windowSize*4, sampleRate, false)

	if refinedEnd <= refinedStart {
		refinedEnd = refinedStart + minWordDuration
	}
	if refinedEnd-refinedStart > maxWordDuration {
		refinedEnd = refinedStart + maxWordDuration
	}

	return refinedStart, refinedEnd
}

// RefineWord adjusts word's Start/End in place to align with the actual
// speech energy in audio, a mono buffer covering at least word's
// timestamps plus the search radius on either side.
func RefineWord(word *Word, audio []float32, sampleRate int) {
	start, end := searchForSpeech(audio, word.Start, word.End, sampleRate)
	word.Start = start
	word.End = end
}

// FindSpeechRegions scans the entirety of audio and returns every
// contiguous span judged to contain speech, in seconds.
func FindSpeechRegions(audio []float32, sampleRate int) []Region {
	var regions []Region
	inSpeech := false
	regionStart := 0

	for i := 0; i < len(audio); i += windowSize {
		energy := energyOf(audio, i, windowSize)
		zc := zeroCrossingRate(audio, i, windowSize)
		isSpeech := energy > energyThreshold && zc > zcThreshold

		if isSpeech && !inSpeech {
			regionStart = i
			inSpeech = true
		} else if !isSpeech && inSpeech {
			regions = append(regions, Region{
				Start: float64(regionStart) / float64(sampleRate),
				End:   float64(i) / float64(sampleRate),
			})
			inSpeech = false
		}
	}
	if inSpeech {
		regions = append(regions, Region{
			Start: float64(regionStart) / float64(sampleRate),
			End:   float64(len(audio)) / float64(sampleRate),
		})
	}
	return regions
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
