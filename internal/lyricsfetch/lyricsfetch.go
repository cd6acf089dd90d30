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

// Package lyricsfetch resolves the lyric transcript for a "now playing"
// song over the network (spec.md §4.7's forced aligner needs ground-truth
// text to align against). A fetch never runs on the worker goroutine: the
// pipeline dispatches it on its own detached goroutine and swaps the
// aligner state in only if the fetch is still the most recent one
// requested when it completes (spec.md §9's "detached fetchers with
// captured this" redesign flag — a slow fetch for a song that has since
// changed again must not clobber newer lyrics with stale ones).
package lyricsfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// Fetcher resolves lyrics text for a song. ok is false when no lyrics
// could be found (not an error condition worth logging loudly); err
// reports transport-level failures.
type Fetcher interface {
	Fetch(ctx context.Context, artist, title string) (text string, ok bool, err error)
}

// HTTPFetcher fetches lyrics from a JSON HTTP API of the shape
// {"lyrics": "..."} at baseURL + "/{artist}/{title}", retrying transient
// failures with a fixed backoff before giving up.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger

	maxAttempts int
	backoff     time.Duration
}

// NewHTTPFetcher builds an HTTPFetcher against baseURL. logger may be
// nil.
func NewHTTPFetcher(baseURL string, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		baseURL: baseURL,
		log:     logger,
		client: &http.Client{
			// Bounded per-attempt timeout; the retry loop owns overall
			// patience, not a single unbounded request.
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		maxAttempts: 3,
		backoff:     2 * time.Second,
	}
}

type lyricsResponse struct {
	Lyrics string `json:"lyrics"`
}

// Fetch requests lyrics for artist/title, retrying transient HTTP and
// network errors up to maxAttempts times.
func (f *HTTPFetcher) Fetch(ctx context.Context, artist, title string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", f.baseURL, url.PathEscape(artist), url.PathEscape(title))

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		text, ok, err := f.attempt(ctx, endpoint)
		if err == nil {
			return text, ok, nil
		}
		lastErr = err
		f.log.Warn("lyrics fetch attempt failed", "attempt", attempt, "error", err)

		if attempt == f.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(f.backoff):
		}
	}
	return "", false, fmt.Errorf("lyricsfetch: all attempts failed: %w", lastErr)
}

func (f *HTTPFetcher) attempt(ctx context.Context, endpoint string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}

	var parsed lyricsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Lyrics == "" {
		return "", false, nil
	}
	return parsed.Lyrics, true, nil
}

// Dispatcher runs fetches on detached goroutines and delivers only the
// result of the most recently dispatched fetch to onResult, discarding
// any in-flight fetch that a newer request has superseded.
type Dispatcher struct {
	fetcher  Fetcher
	log      *slog.Logger
	onResult func(text string)
	gen      atomic.Uint64
}

// NewDispatcher builds a Dispatcher. onResult is invoked with the fetched
// lyrics text on the fetch's own goroutine whenever a fetch completes and
// has not been superseded. Calls are not serialized: a result that passed
// the supersession check may still be inside onResult when a newer
// fetch's result is delivered. logger may be nil.
func NewDispatcher(fetcher Fetcher, onResult func(text string), logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{fetcher: fetcher, log: logger, onResult: onResult}
}

// Dispatch starts a fetch for artist/title on its own goroutine. Any
// fetch already in flight on this Dispatcher is not canceled, but its
// result is dropped if it completes after this call, whichever of the two
// finishes first.
func (d *Dispatcher) Dispatch(ctx context.Context, artist, title string) {
	my := d.gen.Add(1)
	go func() {
		text, ok, err := d.fetcher.Fetch(ctx, artist, title)
		if err != nil {
			d.log.Warn("lyrics fetch failed, alignment disabled for this song", "artist", artist, "title", title, "error", err)
			return
		}
		if !ok {
			d.log.Info("no lyrics found", "artist", artist, "title", title)
			return
		}
		if d.gen.Load() != my {
			d.log.Debug("dropping stale lyrics fetch result", "artist", artist, "title", title)
			return
		}
		d.onResult(text)
	}()
}
