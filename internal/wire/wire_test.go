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

package wire

import (
	"strings"
	"testing"
)

func TestCensorEvent_LabelTruncation(t *testing.T) {
	long := strings.Repeat("a", 200)
	ev := NewCensorEvent(0, 100, ModeMute, long)
	if len(ev.Label()) != maxLabelBytes {
		t.Fatalf("Label() len = %d, want %d", len(ev.Label()), maxLabelBytes)
	}
	if ev.Label() != long[:maxLabelBytes] {
		t.Fatalf("Label() = %q, want prefix of input", ev.Label())
	}
}

func TestCensorEvent_ShortLabelRoundTrips(t *testing.T) {
	ev := NewCensorEvent(10, 20, ModeReverse, "damn")
	if ev.Label() != "damn" {
		t.Fatalf("Label() = %q, want %q", ev.Label(), "damn")
	}
	if ev.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", ev.Len())
	}
}

func TestChunkDescriptor_Span(t *testing.T) {
	d := ChunkDescriptor{ChunkEndPos: 1000, SampleCount: 200}
	start, end := d.Span()
	if start != 800 || end != 1000 {
		t.Fatalf("Span() = (%d, %d), want (800, 1000)", start, end)
	}
}
