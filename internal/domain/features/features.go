// Package features turns OCR text into the numeric feature vector scored by
// the productivity and anomaly models.
package features

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/okian/worksight/internal/domain/model"
)

// Placeholders substituted by Redact.
const (
	EmailPlaceholder  = "[EMAIL]"
	NumberPlaceholder = "[NUMBER]"
)

var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	digitRun      = regexp.MustCompile(`\p{Nd}{3,}`)
	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Keyword sets are matched against lower-cased tokens.
var (
	focusTerms = map[string]struct{}{
		"jira": {}, "ticket": {}, "design": {}, "spec": {}, "review": {},
		"code": {}, "build": {}, "deploy": {}, "python": {}, "word": {},
	}
	distractionTerms = map[string]struct{}{
		"youtube": {}, "netflix": {}, "tiktok": {}, "game": {},
		"shopping": {}, "jiohotstar": {}, "instagram": {},
	}
)

// Redact masks email addresses and integer runs of three or more digits, then
// trims surrounding whitespace. It must run before extraction and hashing.
func Redact(text string) string {
	out := emailPattern.ReplaceAllString(text, EmailPlaceholder)
	out = redactNumbers(out)
	return strings.TrimSpace(out)
}

// redactNumbers masks digit runs that stand alone as a word. Word characters
// are Unicode letters, numbers and underscore, so "é123" stays as is.
func redactNumbers(text string) string {
	locs := digitRun.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if !standsAlone(text, loc[0], loc[1]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(NumberPlaceholder)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func standsAlone(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Extract computes the feature vector for already redacted text.
func Extract(text string) model.FeatureVector {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	var focus, distraction int
	for _, w := range words {
		if _, ok := focusTerms[w]; ok {
			focus++
		}
		if _, ok := distractionTerms[w]; ok {
			distraction++
		}
	}

	var alpha int
	for _, r := range text {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	total := utf8.RuneCountInString(text)
	if total == 0 {
		total = 1
	}

	return model.FeatureVector{
		model.FeatureWordCount:       float64(len(words)),
		model.FeatureLineCount:       float64(countLines(text)),
		model.FeatureFocusHits:       float64(focus),
		model.FeatureDistractionHits: float64(distraction),
		model.FeatureAlphaRatio:      model.Round(float64(alpha)/float64(total), 4),
	}
}

func countLines(text string) int {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	n := 0
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
