// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sanitize reduces raw model output to short, markdown-free plain text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// Ellipsis is appended when text is hard-truncated
const Ellipsis = "…"

// Limits bounds the sanitized output. Zero disables a bound.
type Limits struct {
	MaxSentences int `mapstructure:"max_sentences"`
	MaxChars     int `mapstructure:"max_chars"`
}

var (
	// ChatLimits is used for conversational replies
	ChatLimits = Limits{MaxSentences: 3, MaxChars: 350}
	// ShortLimits is used for compact widget replies
	ShortLimits = Limits{MaxSentences: 2, MaxChars: 150}
)

var (
	bulletPattern     = regexp.MustCompile(`[*•·]+`)
	listMarkerPattern = regexp.MustCompile(`(?m)^[ \t]*(?:[-+–]|\d+[.)])(?:[ \t]+|(\pL))`)
	inlineCodePattern = regexp.MustCompile("[_`]+")
	newlinePattern    = regexp.MustCompile(`\s*\n+\s*`)
	spacePattern      = regexp.MustCompile(`\s{2,}`)
)

// Sanitize strips markdown, collapses whitespace, keeps at most
// limits.MaxSentences sentences and hard-cuts at limits.MaxChars runes on a
// word boundary. The result is at most MaxChars+1 runes long.
func Sanitize(raw string, limits Limits) string {
	if raw == "" {
		return ""
	}

	text := bulletPattern.ReplaceAllString(raw, " ")
	text = listMarkerPattern.ReplaceAllString(text, "$1")
	text = inlineCodePattern.ReplaceAllString(text, "")
	text = newlinePattern.ReplaceAllString(text, " ")
	text = spacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if limits.MaxSentences > 0 {
		text = firstSentences(text, limits.MaxSentences)
	}
	if limits.MaxChars > 0 {
		text = truncateWords(text, limits.MaxChars)
	}
	return text
}

// firstSentences keeps the first n sentences, splitting after '.', '!' or '?'
// when followed by whitespace.
func firstSentences(text string, n int) string {
	runes := []rune(text)
	count := 0
	for i := 0; i < len(runes)-1; i++ {
		if !isTerminal(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return strings.TrimSpace(string(runes[:i+1]))
		}
	}
	return text
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func truncateWords(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])
	// drop the trailing partial word
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx >= 0 {
		cut = cut[:idx]
	}
	cut = strings.TrimRightFunc(cut, unicode.IsSpace)
	return cut + Ellipsis
}
