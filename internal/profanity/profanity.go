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

// Package profanity implements lexicon-based profanity detection over a
// timestamped word stream, including multi-token phrases such as
// "what the hell" (spec.md §4.8).
package profanity

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/explicitlyaudio/silencer/internal/aligner"
)

// maxPhraseLength bounds how many consecutive words are joined into a
// candidate phrase before falling back to single-word matching.
const maxPhraseLength = 5

// Word is one recognized token with its timing, the unit the aligner and
// recognizer hand to the matcher.
type Word struct {
	Text      string
	StartTime float64
	EndTime   float64
}

// Span identifies a contiguous run of words that together form a
// profane phrase.
type Span struct {
	StartWordIdx int
	EndWordIdx   int
	StartTime    float64
	EndTime      float64
	Text         string
}

// Lexicon is a case-insensitive set of profane words and phrases.
type Lexicon struct {
	entries map[string]struct{}
}

// NewLexicon builds an empty Lexicon.
func NewLexicon() *Lexicon {
	return &Lexicon{entries: make(map[string]struct{})}
}

// LoadLexiconFile reads one word or phrase per line from path. Blank
// lines and lines starting with '#' are ignored.
func LoadLexiconFile(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profanity: open lexicon: %w", err)
	}
	defer f.Close()
	return LoadLexicon(f)
}

// LoadLexicon reads a lexicon from an already-open reader, in the same
// format as LoadLexiconFile.
func LoadLexicon(r io.Reader) (*Lexicon, error) {
	lex := NewLexicon()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		lex.entries[aligner.NormalizeText(raw)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("profanity: read lexicon: %w", err)
	}
	if len(lex.entries) == 0 {
		return nil, fmt.Errorf("profanity: lexicon is empty")
	}
	return lex, nil
}

// IsProfane reports whether word or phrase is present in the lexicon.
// It normalizes word the same way the aligner normalizes lyrics text
// (lowercase, strip punctuation) so a recognized token like "damn," or
// "Damn!" still matches a lexicon entry of "damn" (spec.md §4.8
// invariant: is_profane(s) depends only on normalize(s)).
func (l *Lexicon) IsProfane(word string) bool {
	_, ok := l.entries[aligner.NormalizeText(word)]
	return ok
}

// Size returns the number of entries loaded.
func (l *Lexicon) Size() int {
	return len(l.entries)
}

// Detect scans words for profane phrases, trying the longest phrase
// first at each position (up to maxPhraseLength tokens) so multi-word
// entries take priority over a single-word match inside them. Matches
// do not overlap: once a span is found, scanning resumes after it.
func (l *Lexicon) Detect(words []Word) []Span {
	var spans []Span
	for i := 0; i < len(words); {
		matched := false
		maxLen := maxPhraseLength
		if remaining := len(words) - i; remaining < maxLen {
			maxLen = remaining
		}
		for phraseLen := maxLen; phraseLen >= 1; phraseLen-- {
			phrase := joinWords(words[i : i+phraseLen])
			if l.IsProfane(phrase) {
				spans = append(spans, Span{
					StartWordIdx: i,
					EndWordIdx:   i + phraseLen - 1,
					StartTime:    words[i].StartTime,
					EndTime:      words[i+phraseLen-1].EndTime,
					Text:         phrase,
				})
				i += phraseLen
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	return spans
}

func joinWords(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
