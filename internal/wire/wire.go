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

// Package wire defines the fixed-size, trivially-copyable records that
// cross the SPSC queues between the audio callback and the recognition
// worker. Neither record type contains a pointer, slice, or string —
// only value fields — so pushing and popping them is a plain struct copy,
// matching the queues' "no allocation, no shared backing array" contract.
package wire

// CensorMode selects the rewrite operator applied to a censored interval.
type CensorMode uint8

const (
	ModeMute CensorMode = iota
	ModeReverse
)

func (m CensorMode) String() string {
	switch m {
	case ModeMute:
		return "mute"
	case ModeReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// maxLabelBytes bounds CensorEvent.Label so the record stays fixed-size.
const maxLabelBytes = 64

// ChunkDescriptor identifies a span of samples the worker should pull
// from the delay line and recognize. It carries no sample data itself —
// only the position and shape of the span (spec.md §3).
type ChunkDescriptor struct {
	ChunkEndPos     int64
	SampleCount     int64
	ChannelCount    int
	InputSampleRate int
}

// Span returns the half-open [start, end) sample-position range this
// descriptor covers.
func (d ChunkDescriptor) Span() (start, end int64) {
	return d.ChunkEndPos - d.SampleCount, d.ChunkEndPos
}

// CensorEvent is an in-place rewrite instruction emitted by the worker
// and consumed by the audio callback (spec.md §3, §9 redesign flag).
type CensorEvent struct {
	StartPos int64
	EndPos   int64
	Mode     CensorMode

	label    [maxLabelBytes]byte
	labelLen uint8
}

// NewCensorEvent builds a CensorEvent, truncating label to maxLabelBytes.
func NewCensorEvent(start, end int64, mode CensorMode, label string) CensorEvent {
	ev := CensorEvent{StartPos: start, EndPos: end, Mode: mode}
	ev.SetLabel(label)
	return ev
}

// SetLabel copies label into the event's fixed-size buffer, truncating if
// necessary. It never allocates.
func (e *CensorEvent) SetLabel(label string) {
	n := copy(e.label[:], label)
	e.labelLen = uint8(n)
}

// Label returns the event's label as a string. This allocates and should
// only be called off the realtime path (metrics, logging, UI events).
func (e CensorEvent) Label() string {
	return string(e.label[:e.labelLen])
}

// Len returns the number of samples the interval spans.
func (e CensorEvent) Len() int64 {
	return e.EndPos - e.StartPos
}
