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

// Package eventbus publishes pipeline activity — censorship events,
// buffer health transitions, and now-playing metadata — onto NATS
// subjects so a companion UI process can subscribe without coupling to
// the pipeline's internals. It is not on the realtime audio path: the
// worker and metrics goroutines publish from outside the audio
// callback.
package eventbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects used by the pipeline's UI event stream. SubjectNowPlaying and
// SubjectNowPlayingInput are deliberately distinct subjects: an external
// now-playing metadata source (a media player, a DJ console) publishes
// song changes to SubjectNowPlayingInput, and the pipeline republishes
// them to SubjectNowPlaying for a UI to display. Sharing one subject for
// both directions would make the pipeline's own PublishNowPlaying call
// re-trigger itself through its own subscription.
const (
	SubjectCensorEvent     = "silencer.events.censor"
	SubjectBufferHealth    = "silencer.events.buffer_health"
	SubjectNowPlaying      = "silencer.nowplaying"
	SubjectNowPlayingInput = "silencer.nowplaying.input"
)

// Connection is the subset of *nats.Conn the event bus depends on,
// narrowed so it can be swapped for a fake in tests.
type Connection interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// connAdapter adapts *nats.Conn to Connection.
type connAdapter struct {
	conn *nats.Conn
}

func (a *connAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *connAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *connAdapter) Close() {
	a.conn.Close()
}

// UIEvent is a discrete, human-meaningful thing that happened in the
// pipeline: a censorship was applied, buffer health changed state, and
// so on. EventType is one of the Subject* constants' short names.
type UIEvent struct {
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// CensorEventDetail is the Detail payload for a censor UIEvent.
type CensorEventDetail struct {
	Label    string  `json:"label"`
	Mode     string  `json:"mode"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// BufferHealthDetail is the Detail payload for a buffer-health UIEvent.
type BufferHealthDetail struct {
	State        string `json:"state"`
	GapSamples   int64  `json:"gap_samples"`
	CapacitySize int64  `json:"capacity_samples"`
}

// NowPlayingInfo is the metadata the pipeline publishes each time the
// active song changes, and the type a UI subscribes to display it.
type NowPlayingInfo struct {
	Artist    string    `json:"artist"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// NowPlayingSource abstracts where a driver learns about now-playing
// changes, so cmd/silencer (or a test) can wire Pipeline.OnNowPlaying to
// a real NATS subscription or a fake without caring which. Publisher
// satisfies this through SubscribeNowPlayingInput.
type NowPlayingSource interface {
	SubscribeNowPlayingInput(cb func(NowPlayingInfo)) (*nats.Subscription, error)
}

// Publisher connects to NATS and publishes UI events and now-playing
// metadata. The zero value is not usable; construct with Connect.
type Publisher struct {
	conn   Connection
	logger *slog.Logger
}

// Connect dials natsURL with a bounded number of retries, matching the
// reconnect-on-boot behavior the rest of the pack's NATS consumers use.
func Connect(natsURL string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var nc *nats.Conn
	var err error
	const attempts = 5
	for i := 0; i < attempts; i++ {
		nc, err = nats.Connect(natsURL)
		if err == nil {
			break
		}
		logger.Warn("nats connect failed, retrying", "attempt", i+1, "max_attempts", attempts, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats after %d attempts: %w", attempts, err)
	}

	logger.Info("connected to nats", "url", natsURL)
	return &Publisher{conn: &connAdapter{conn: nc}, logger: logger}, nil
}

// NewWithConnection builds a Publisher around an already-established
// Connection, for tests and for embedding a fake bus.
func NewWithConnection(conn Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// PublishCensorEvent announces a censorship that was just applied.
func (p *Publisher) PublishCensorEvent(detail CensorEventDetail) error {
	return p.publish(SubjectCensorEvent, "censor", detail)
}

// PublishBufferHealth announces a buffer-health state transition.
func (p *Publisher) PublishBufferHealth(detail BufferHealthDetail) error {
	return p.publish(SubjectBufferHealth, "buffer_health", detail)
}

// PublishNowPlaying announces that a new song has started.
func (p *Publisher) PublishNowPlaying(info NowPlayingInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("eventbus: marshal now-playing: %w", err)
	}
	if err := p.conn.Publish(SubjectNowPlaying, payload); err != nil {
		return fmt.Errorf("eventbus: publish now-playing: %w", err)
	}
	return nil
}

func (p *Publisher) publish(subject, eventType string, detail any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("eventbus: marshal %s detail: %w", eventType, err)
	}
	ev := UIEvent{EventType: eventType, Timestamp: time.Now(), Detail: raw}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal %s event: %w", eventType, err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("event publish failed", "subject", subject, "error", err)
		return fmt.Errorf("eventbus: publish %s: %w", subject, err)
	}
	return nil
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// SubscribeNowPlaying registers cb to be called each time the pipeline
// republishes a NowPlayingInfo for the UI. Malformed messages are logged
// and dropped rather than delivered to cb.
func (p *Publisher) SubscribeNowPlaying(cb func(NowPlayingInfo)) (*nats.Subscription, error) {
	return p.subscribeNowPlayingSubject(SubjectNowPlaying, cb)
}

// SubscribeNowPlayingInput registers cb to be called each time an
// external now-playing metadata source announces a song change. This is
// the subscription the pipeline's own driver wires to Pipeline.OnNowPlaying
// (spec.md §4.7's periodic side-effect); it is a distinct subject from
// SubscribeNowPlaying to avoid the pipeline reacting to its own
// UI-facing republish.
func (p *Publisher) SubscribeNowPlayingInput(cb func(NowPlayingInfo)) (*nats.Subscription, error) {
	return p.subscribeNowPlayingSubject(SubjectNowPlayingInput, cb)
}

func (p *Publisher) subscribeNowPlayingSubject(subject string, cb func(NowPlayingInfo)) (*nats.Subscription, error) {
	return p.conn.Subscribe(subject, func(msg *nats.Msg) {
		var info NowPlayingInfo
		if err := json.Unmarshal(msg.Data, &info); err != nil {
			p.logger.Warn("dropping malformed now-playing message", "subject", subject, "error", err)
			return
		}
		cb(info)
	})
}
