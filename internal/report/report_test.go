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

package report

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestWriter_WriteCreatesFileWithSpans(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	spans := []Span{
		{Label: "damn", Start: 1.2, End: 1.5},
		{Label: "hell", Start: 3.0, End: 3.4},
	}
	when := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

	path, err := w.Write("The Artist", "The Title", spans, when)
	if err != nil {
		t.Fatalf("Write() err = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() err = %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "The Artist") || !strings.Contains(content, "The Title") {
		t.Fatalf("report missing artist/title: %s", content)
	}
	if !strings.Contains(content, "damn") || !strings.Contains(content, "hell") {
		t.Fatalf("report missing spans: %s", content)
	}
	if !strings.Contains(path, "20260806-120000") {
		t.Fatalf("path = %q, want timestamp component", path)
	}
}

func TestSanitize_StripsUnsafeCharacters(t *testing.T) {
	got := sanitize(`AC/DC: "Back" in Black?`)
	if strings.ContainsAny(got, `/\:*?"<>|`) {
		t.Fatalf("sanitize() = %q, still contains unsafe characters", got)
	}
}

func TestWriter_DefaultsToStandardDirWhenEmpty(t *testing.T) {
	w := New("")
	if w.dir != Dir {
		t.Fatalf("dir = %q, want %q", w.dir, Dir)
	}
}
