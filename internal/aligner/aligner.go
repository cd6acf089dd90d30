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

// Package aligner implements forced lyric alignment: given a chunk of
// recognized words and a known lyric sheet, it decides whether the
// recognized words are following the lyrics closely enough to snap onto
// them, tracks a lock/unlock state across chunks, and can predict
// upcoming words during stretches with no recognizer output (spec.md
// §4.7).
package aligner

import (
	"regexp"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

const (
	textMatchThreshold    = 0.20
	phonemeMatchThreshold = 0.75
	lockThreshold         = 0.80
	confidenceGate        = 0.50
	lockRequiredMatches   = 2

	timeBasedWindow      = 30
	lockedSearchWindow   = 10
	largeJumpWords       = 20
	estimatedWordsPerSec = 3.5

	// tieBreakMargin: candidate windows scoring within this of the best
	// Levenshtein score are re-ranked by tieBreakScore's Jaro-Winkler
	// blend instead of taking whichever the linear scan saw first.
	tieBreakMargin = 0.02
)

var nonAlnumSpace = regexp.MustCompile(`[^a-z0-9 ]`)

// Word is a single recognized or lyric-sourced token with timing and
// confidence, the unit the aligner consumes and produces.
type Word struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

// lyricWord is a preprocessed entry from the loaded lyric sheet.
type lyricWord struct {
	index   int
	text    string
	soundex string
}

// Aligner tracks alignment state across successive chunks of recognized
// words for a single loaded lyric sheet. All state is guarded by mu: the
// worker holds it for the duration of one Align call, and a detached
// lyrics-fetch goroutine holds it briefly to swap in a freshly fetched
// lyric sheet via SetLyrics (spec.md §5).
type Aligner struct {
	mu sync.Mutex

	lyrics []lyricWord

	position           int
	locked             bool
	consecutiveMatches int
}

// New returns an Aligner with no lyrics loaded; Align passes recognized
// words through unchanged until SetLyrics is called.
func New() *Aligner {
	return &Aligner{}
}

// SetLyrics tokenizes and phonetically encodes lyrics, resetting all
// alignment state.
func (a *Aligner) SetLyrics(lyrics string) {
	words := splitIntoWords(lyrics)
	lyricWords := make([]lyricWord, len(words))
	for i, w := range words {
		lyricWords[i] = lyricWord{index: i, text: w, soundex: Soundex(w)}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lyrics = lyricWords
	a.position = 0
	a.locked = false
	a.consecutiveMatches = 0
}

// Reset clears alignment state without discarding the loaded lyrics.
func (a *Aligner) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = 0
	a.locked = false
	a.consecutiveMatches = 0
}

// Ready reports whether lyrics have been loaded.
func (a *Aligner) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready()
}

func (a *Aligner) ready() bool {
	return len(a.lyrics) > 0
}

// Locked reports whether the aligner currently believes it is tracking
// the correct point in the lyric sheet.
func (a *Aligner) Locked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

// Position returns the current index into the loaded lyric sheet.
func (a *Aligner) Position() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// NormalizeText lowercases text, strips punctuation, and collapses
// whitespace.
func NormalizeText(text string) string {
	lower := strings.ToLower(text)
	stripped := nonAlnumSpace.ReplaceAllString(lower, "")
	return strings.Join(strings.Fields(stripped), " ")
}

func splitIntoWords(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// Soundex encodes word using a simplified four-character phonetic code:
// the first letter, followed by up to three digits from consonant
// groups, skipping vowels and consecutive repeats.
func Soundex(word string) string {
	normalized := NormalizeText(word)
	if normalized == "" {
		return ""
	}

	var code strings.Builder
	code.WriteByte(byte(strings.ToUpper(string(normalized[0]))[0]))

	var lastDigit byte
	for i := 1; i < len(normalized) && code.Len() < 4; i++ {
		digit := consonantDigit(normalized[i])
		if digit != 0 && digit != lastDigit {
			code.WriteByte(digit)
			lastDigit = digit
		} else if digit == 0 {
			lastDigit = 0
		}
	}

	for code.Len() < 4 {
		code.WriteByte('0')
	}
	return code.String()
}

func consonantDigit(c byte) byte {
	switch c {
	case 'b', 'f', 'p', 'v':
		return '1'
	case 'c', 'g', 'j', 'k', 'q', 's', 'x', 'z':
		return '2'
	case 'd', 't':
		return '3'
	case 'l':
		return '4'
	case 'm', 'n':
		return '5'
	case 'r':
		return '6'
	default:
		return 0
	}
}

// Similarity returns a Levenshtein-based similarity in [0, 1] between
// two texts after normalization: 1 - editDistance/maxLen.
func Similarity(a, b string) float64 {
	s1 := NormalizeText(a)
	s2 := NormalizeText(b)
	if s1 == "" && s2 == "" {
		return 1
	}
	if s1 == "" || s2 == "" {
		return 0
	}
	if s1 == s2 {
		return 1
	}
	dist := levenshtein(s1, s2)
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1]
			} else {
				dp[i][j] = 1 + min3(dp[i-1][j], dp[i][j-1], dp[i-1][j-1])
			}
		}
	}
	return dp[m][n]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// isNonLyrical reports whether words look like a non-lyrical annotation
// ("[music]", "[applause]", ...) rather than actual sung content.
func isNonLyrical(words []Word) bool {
	if len(words) == 0 {
		return true
	}
	var combined strings.Builder
	for _, w := range words {
		combined.WriteString(NormalizeText(w.Text))
		combined.WriteByte(' ')
	}
	text := NormalizeText(combined.String())
	if len(text) < 2 {
		return true
	}
	for _, marker := range []string{"music", "applause", "laughter", "instrumental"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// verifyWord scores a single recognized word against an expected lyric
// word using text similarity, phonetic match, and a confidence-gated
// snap. It also folds in a Jaro-Winkler score as a tie-break so two
// short words with the same edit distance but different letter-order
// closeness don't score identically.
func verifyWord(recognized Word, expected lyricWord) float64 {
	textSim := Similarity(recognized.Text, expected.text)
	jw := matchr.JaroWinkler(NormalizeText(recognized.Text), expected.text, true)
	textSim = (textSim + jw) / 2
	if textSim >= textMatchThreshold {
		return textSim
	}

	if Soundex(recognized.Text) == expected.soundex {
		return 1
	}

	if recognized.Confidence < confidenceGate && textSim >= 0.5 {
		return 0.75
	}

	return textSim
}

// findBestStartPosition slides a window of len(words) across
// [searchStart, searchEnd) of the loaded lyrics and returns the position
// with the highest whole-window similarity. Candidates within
// tieBreakMargin of the best score are re-ranked by tieBreakScore, a
// per-word Jaro-Winkler blend, so two windows with near-identical edit
// distance don't just take whichever the scan reached first.
func (a *Aligner) findBestStartPosition(words []Word, searchStart, searchEnd int) (position int, score float64) {
	if searchEnd > len(a.lyrics) {
		searchEnd = len(a.lyrics)
	}
	var transcribedText strings.Builder
	for _, w := range words {
		transcribedText.WriteString(w.Text)
		transcribedText.WriteByte(' ')
	}
	transcribed := NormalizeText(transcribedText.String())

	type candidate struct {
		position int
		score    float64
	}
	bestPosition := -1
	bestScore := 0.0
	var contenders []candidate

	for pos := searchStart; pos < searchEnd; pos++ {
		end := pos + len(words)
		if end > len(a.lyrics) {
			end = len(a.lyrics)
		}
		var lyricsText strings.Builder
		for i := pos; i < end; i++ {
			lyricsText.WriteString(a.lyrics[i].text)
			lyricsText.WriteByte(' ')
		}
		s := Similarity(transcribed, NormalizeText(lyricsText.String()))
		if s > bestScore {
			bestScore = s
			bestPosition = pos
		}
		if s > 0 {
			contenders = append(contenders, candidate{pos, s})
		}
	}
	if bestPosition < 0 {
		return -1, 0
	}

	for _, c := range contenders {
		if c.position == bestPosition || bestScore-c.score > tieBreakMargin {
			continue
		}
		if a.tieBreakScore(words, c.position) > a.tieBreakScore(words, bestPosition) {
			bestPosition, bestScore = c.position, c.score
		}
	}
	return bestPosition, bestScore
}

// tieBreakScore averages verifyWord's Jaro-Winkler-blended score across
// the window starting at pos, used only to re-rank near-tied candidates
// from findBestStartPosition.
func (a *Aligner) tieBreakScore(words []Word, pos int) float64 {
	var sum float64
	n := 0
	for i, w := range words {
		idx := pos + i
		if idx >= len(a.lyrics) {
			break
		}
		sum += verifyWord(w, a.lyrics[idx])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// mapTimestamps distributes the transcribed chunk's overall time span
// evenly across lyricsCount words taken from the lyric sheet starting at
// lyricsStart.
func (a *Aligner) mapTimestamps(lyricsStart, lyricsCount int, transcribed []Word) []Word {
	if len(transcribed) == 0 || lyricsCount == 0 {
		return nil
	}
	startTime := transcribed[0].Start
	endTime := transcribed[len(transcribed)-1].End
	timePerWord := (endTime - startTime) / float64(lyricsCount)

	var confSum float64
	for _, w := range transcribed {
		confSum += w.Confidence
	}
	avgConf := confSum / float64(len(transcribed))

	result := make([]Word, 0, lyricsCount)
	for i := 0; i < lyricsCount; i++ {
		idx := lyricsStart + i
		if idx >= len(a.lyrics) {
			break
		}
		wordStart := startTime + float64(i)*timePerWord

		result = append(result, Word{
			Text:       a.lyrics[idx].text,
			Start:      wordStart,
			End:        wordStart + timePerWord,
			Confidence: avgConf * 0.95,
		})
	}
	return result
}

// Align attempts to snap a chunk of recognized words onto the loaded
// lyric sheet. absoluteTime is the chunk's position, in seconds, since
// playback started, used to bound the search window and detect seeks.
// If no lyrics are loaded, or the chunk looks non-lyrical, or no
// confident match is found, the recognized words are returned
// unchanged.
func (a *Aligner) Align(words []Word, absoluteTime float64) []Word {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready() || len(words) == 0 {
		return words
	}
	if isNonLyrical(words) {
		return words
	}

	estimatedPosition := a.position
	if absoluteTime > 0 {
		estimatedPosition = int(absoluteTime * estimatedWordsPerSec)
		delta := estimatedPosition - a.position
		if delta < 0 {
			delta = -delta
		}
		if delta > largeJumpWords && a.locked {
			a.locked = false
			a.consecutiveMatches = 0
		}
	}

	var searchStart, searchEnd int
	if !a.locked || a.position == 0 {
		searchStart = estimatedPosition - timeBasedWindow
		if searchStart < 0 {
			searchStart = 0
		}
		searchEnd = estimatedPosition + timeBasedWindow
	} else {
		searchStart = a.position
		searchEnd = a.position + lockedSearchWindow
	}
	if searchEnd > len(a.lyrics) {
		searchEnd = len(a.lyrics)
	}

	matchPosition, matchScore := a.findBestStartPosition(words, searchStart, searchEnd)
	if matchPosition < 0 {
		a.locked = false
		a.consecutiveMatches = 0
		return words
	}

	switch {
	case matchScore >= lockThreshold:
		a.consecutiveMatches++
		if a.consecutiveMatches >= lockRequiredMatches {
			a.locked = true
		}
		return a.commitMatch(matchPosition, words)
	case matchScore >= textMatchThreshold:
		a.locked = false
		a.consecutiveMatches = 0
		return a.commitMatch(matchPosition, words)
	default:
		a.locked = false
		a.consecutiveMatches = 0
		return words
	}
}

func (a *Aligner) commitMatch(matchPosition int, words []Word) []Word {
	wordCount := len(words)
	if remaining := len(a.lyrics) - matchPosition; remaining < wordCount {
		wordCount = remaining
	}
	aligned := a.mapTimestamps(matchPosition, wordCount, words)
	a.position = matchPosition + wordCount
	return aligned
}

// Predict fills a silent stretch of duration seconds with words pulled
// sequentially from the current lyric position, advancing it as if
// those words had been confirmed. The recognizer's next real result
// should still correct anything predicted here.
func (a *Aligner) Predict(duration float64) []Word {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready() || a.position >= len(a.lyrics) || duration <= 0 {
		return nil
	}

	numWords := int(duration * estimatedWordsPerSec)
	if remaining := len(a.lyrics) - a.position; numWords > remaining {
		numWords = remaining
	}
	if numWords <= 0 {
		return nil
	}

	wordDuration := duration / float64(numWords)
	predicted := make([]Word, numWords)
	for i := 0; i < numWords; i++ {
		start := float64(i) * wordDuration
		predicted[i] = Word{
			Text:       a.lyrics[a.position+i].text,
			Start:      start,
			End:        start + wordDuration,
			Confidence: 0.5,
		}
	}
	a.position += numWords
	return predicted
}
