// Package summarize produces short extractive summaries: the most salient
// sentences of the body, re-emitted in document order.
package summarize

import (
	"regexp"
	"strings"

	"newsdesk/internal/domain"
	"newsdesk/internal/normalize"
)

const (
	maxSummaryLen   = 320
	sentencesWanted = 2
)

// Sentence terminators cover both Latin punctuation and the Persian
// question mark / full stop. The terminator must be followed by whitespace
// or the end of the text, so decimals and dotted abbreviations do not
// split a sentence.
var sentenceEnd = regexp.MustCompile(`[.!?؟。]+["')\]»]*(?:\s+|$)`)

var stopWordsEN = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "to": {}, "for": {}, "with": {}, "is": {}, "are": {}, "was": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "by": {}, "as": {}, "at": {},
}

var stopWordsFA = map[string]struct{}{
	"از": {}, "به": {}, "در": {}, "و": {}, "که": {}, "را": {}, "با": {},
	"این": {}, "آن": {}, "است": {}, "برای": {}, "یک": {}, "تا": {}, "بر": {},
}

func stopWordsFor(lang domain.Language) map[string]struct{} {
	if lang == domain.LangFA {
		return stopWordsFA
	}
	return stopWordsEN
}

// Summarize extracts up to two high-salience sentences from html content
// in the given language and truncates the result to a renderable length.
// When the text has no sentence boundaries the leading slice of the text
// is returned instead.
func Summarize(html string, lang domain.Language) string {
	text := normalize.StripHTML(html)
	if text == "" {
		return ""
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncate(text, maxSummaryLen)
	}
	if len(sentences) <= sentencesWanted {
		return truncate(strings.Join(sentences, " "), maxSummaryLen)
	}

	stop := stopWordsFor(lang)
	freq := map[string]int{}
	for _, s := range sentences {
		for _, w := range tokenize(s, stop) {
			freq[w]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		words := tokenize(s, stop)
		if len(words) == 0 {
			continue
		}
		var sum float64
		for _, w := range words {
			sum += float64(freq[w])
		}
		// Length-normalized so long sentences do not win by volume.
		ranked = append(ranked, scored{index: i, score: sum / float64(len(words))})
	}
	if len(ranked) == 0 {
		return truncate(text, maxSummaryLen)
	}

	// Selection sort of the top sentences keeps this allocation-light for
	// the tiny n we deal with.
	for pick := 0; pick < sentencesWanted && pick < len(ranked); pick++ {
		best := pick
		for j := pick + 1; j < len(ranked); j++ {
			if ranked[j].score > ranked[best].score {
				best = j
			}
		}
		ranked[pick], ranked[best] = ranked[best], ranked[pick]
	}
	top := ranked[:min(sentencesWanted, len(ranked))]

	// Re-emit in document order.
	indices := make([]int, len(top))
	for i, s := range top {
		indices[i] = s.index
	}
	if len(indices) == 2 && indices[0] > indices[1] {
		indices[0], indices[1] = indices[1], indices[0]
	}

	parts := make([]string, 0, len(indices))
	for _, i := range indices {
		parts = append(parts, sentences[i])
	}
	return truncate(strings.Join(parts, " "), maxSummaryLen)
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[last:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" && len(out) > 0 {
		out = append(out, tail)
	}
	return out
}

func tokenize(s string, stop map[string]struct{}) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isWordRune(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, skip := stop[f]; !skip && len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
		return true
	}
	// Arabic/Persian block plus presentation forms.
	return r >= 0x0600 && r <= 0x06FF || r == 0x200C
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
