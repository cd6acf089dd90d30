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

// Package rewrite implements the two in-place censorship operators —
// mute and reverse — applied to a still-retained span of the delay line
// before it reaches the read cursor (spec.md §4.5). Both apply a short
// linear fade at the edges of the span to avoid audible clicks.
package rewrite

import "github.com/explicitlyaudio/silencer/internal/delayline"

// FadeSamples returns the number of samples a 10ms fade spans at the
// given sample rate.
func FadeSamples(sampleRate int) int {
	return sampleRate * 10 / 1000
}

// Mute silences [start, end) of channel ch in line, fading to zero over
// the first FadeSamples(sampleRate) samples and fading back up over the
// last FadeSamples(sampleRate) samples. The span must already be
// retained by line (spec.md §4.1 invariant 1 guarantees this when the
// worker keeps pace).
func Mute(line *delayline.Line, ch int, start, end int64, sampleRate int) error {
	length := end - start
	if length <= 0 {
		return nil
	}
	fade := int64(FadeSamples(sampleRate))
	if fade*4 > length {
		fade = length / 4
	}

	buf := make([]float32, length)
	if err := line.ReadAt(ch, start, buf); err != nil {
		return err
	}

	applyFadeOut(buf[:fade])
	for i := fade; i < length-fade; i++ {
		buf[i] = 0
	}
	applyFadeIn(buf[length-fade:])

	return line.StoreAt(ch, start, buf)
}

// reverseScale is the amplitude a reversed span is written back at
// (spec.md §4.5): reversed speech is still intelligible, so it plays
// back quieter than the original rather than at full volume.
const reverseScale = 0.5

// Reverse plays [start, end) of channel ch backwards at half amplitude,
// fading the reversed audio in from silence over the leading fade window
// and back out to silence over the trailing one. The span must already
// be retained by line.
func Reverse(line *delayline.Line, ch int, start, end int64, sampleRate int) error {
	length := end - start
	if length <= 0 {
		return nil
	}
	fade := int64(FadeSamples(sampleRate))
	if fade*4 > length {
		fade = length / 4
	}

	buf := make([]float32, length)
	if err := line.ReadAt(ch, start, buf); err != nil {
		return err
	}

	for i, j := int64(0), length-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	for i := range buf {
		buf[i] *= reverseScale
	}

	applyFadeIn(buf[:fade])
	applyFadeOut(buf[length-fade:])

	return line.StoreAt(ch, start, buf)
}

// applyFadeOut scales samples linearly from 1.0 down to 0.0.
func applyFadeOut(samples []float32) {
	n := len(samples)
	if n == 0 {
		return
	}
	denom := float32(max(n-1, 1))
	for i := range samples {
		gain := 1.0 - float32(i)/denom
		samples[i] *= gain
	}
}

// applyFadeIn scales samples linearly from 0.0 up to 1.0.
func applyFadeIn(samples []float32) {
	n := len(samples)
	if n == 0 {
		return
	}
	denom := float32(max(n-1, 1))
	for i := range samples {
		gain := float32(i) / denom
		samples[i] *= gain
	}
}
