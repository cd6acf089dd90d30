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

package lyricsfetch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPFetcher_ReturnsLyricsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(lyricsResponse{Lyrics: "the quick brown fox"})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, nil)
	text, ok, err := f.Fetch(context.Background(), "artist", "title")
	if err != nil || !ok || text != "the quick brown fox" {
		t.Fatalf("Fetch() = %q, %v, %v", text, ok, err)
	}
}

func TestHTTPFetcher_NotFoundReturnsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, nil)
	text, ok, err := f.Fetch(context.Background(), "artist", "title")
	if err != nil || ok || text != "" {
		t.Fatalf("Fetch() = %q, %v, %v, want not-found", text, ok, err)
	}
}

func TestHTTPFetcher_RetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(lyricsResponse{Lyrics: "second try"})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, nil)
	f.backoff = time.Millisecond
	text, ok, err := f.Fetch(context.Background(), "artist", "title")
	if err != nil || !ok || text != "second try" {
		t.Fatalf("Fetch() = %q, %v, %v", text, ok, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestHTTPFetcher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, nil)
	f.backoff = time.Millisecond
	_, _, err := f.Fetch(context.Background(), "artist", "title")
	if err == nil {
		t.Fatal("Fetch() err = nil, want error after exhausting attempts")
	}
	if calls != f.maxAttempts {
		t.Fatalf("calls = %d, want %d", calls, f.maxAttempts)
	}
}

type scriptedFetcher struct {
	delay time.Duration
	text  string
}

func (s scriptedFetcher) Fetch(ctx context.Context, artist, title string) (string, bool, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	return s.text, true, nil
}

// titleFetcher picks the scripted response by song title.
type titleFetcher map[string]scriptedFetcher

func (m titleFetcher) Fetch(ctx context.Context, artist, title string) (string, bool, error) {
	return m[title].Fetch(ctx, artist, title)
}

func TestDispatcher_DropsSupersededResult(t *testing.T) {
	var mu sync.Mutex
	var received []string
	onResult := func(text string) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, text)
	}

	fetcher := titleFetcher{
		"old-song": {delay: 50 * time.Millisecond, text: "stale"},
		"new-song": {delay: time.Millisecond, text: "fresh"},
	}
	d := &Dispatcher{fetcher: fetcher, onResult: onResult, log: noopLogger()}
	d.Dispatch(context.Background(), "a", "old-song")
	d.Dispatch(context.Background(), "a", "new-song")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "fresh" {
		t.Fatalf("received = %v, want [fresh] only", received)
	}
}

func TestDispatcher_SecondDispatchSupersedesFirstOnSameInstance(t *testing.T) {
	var mu sync.Mutex
	var received []string
	onResult := func(text string) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, text)
	}

	d := NewDispatcher(nil, onResult, noopLogger())
	d.fetcher = scriptedFetcher{delay: 50 * time.Millisecond, text: "stale"}
	d.Dispatch(context.Background(), "a", "old-song")

	d.fetcher = scriptedFetcher{delay: time.Millisecond, text: "fresh"}
	d.Dispatch(context.Background(), "a", "new-song")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "fresh" {
		t.Fatalf("received = %v, want [fresh] only", received)
	}
}
