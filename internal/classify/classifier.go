// Package classify assigns categories, tags and topics to article text.
// Everything here is a pure function of the text: deterministic output for
// identical input.
package classify

import (
	"sort"
	"strings"
)

// Rule tables: a category or tag applies when any of its keywords occurs as
// a case-insensitive substring. Membership is binary, there is no scoring.
var categoryKeywords = map[string][]string{
	"news":     {"launch", "announce", "release", "unveil", "introduce", "معرفی", "عرضه", "رونمایی"},
	"tools":    {"tool", "sdk", "framework", "library", "plugin", "ابزار", "کتابخانه"},
	"research": {"paper", "study", "research", "benchmark", "arxiv", "dataset", "پژوهش", "مقاله", "تحقیق"},
	"industry": {"funding", "acquisition", "investment", "partnership", "revenue", "ipo", "سرمایه", "جذب سرمایه"},
	"policy":   {"regulation", "policy", "lawsuit", "copyright", "ban", "قانون", "مقررات", "حکم"},
}

var tagKeywords = map[string][]string{
	"llm":         {"gpt", "llm", "language model", "chatbot", "claude", "gemini", "مدل زبانی", "چت‌بات"},
	"open-source": {"open source", "open-source", "متن‌باز", "متن باز", "اوپن سورس"},
	"robotics":    {"robot", "humanoid", "ربات", "رباتیک"},
	"vision":      {"computer vision", "image model", "diffusion", "text-to-image", "بینایی ماشین"},
	"speech":      {"speech", "voice assistant", "text-to-speech", "گفتار", "صوتی"},
	"hardware":    {"gpu", "chip", "nvidia", "semiconductor", "تراشه", "پردازنده"},
	"safety":      {"safety", "alignment", "jailbreak", "ایمنی", "همترازی"},
	"startups":    {"startup", "founder", "استارتاپ", "استارت‌آپ", "بنیان‌گذار"},
}

// ClassifyText returns the matching category and tag slugs, each sorted for
// stable output.
func ClassifyText(text string) (categories, tags []string) {
	lower := strings.ToLower(text)

	for slug, keywords := range categoryKeywords {
		if matchesAny(lower, keywords) {
			categories = append(categories, slug)
		}
	}
	for slug, keywords := range tagKeywords {
		if matchesAny(lower, keywords) {
			tags = append(tags, slug)
		}
	}

	sort.Strings(categories)
	sort.Strings(tags)
	return categories, tags
}

func matchesAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
