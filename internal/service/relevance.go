package service

import (
	"regexp"
	"strings"
)

// DefaultDomainKeywords are the shopping-domain indicator terms used by
// the keyword relevance stage when no override is configured.
var DefaultDomainKeywords = []string{
	"product", "item", "buy", "purchase", "price", "cost",
	"feature", "specification", "spec", "available", "stock",
	"catalog", "shopping", "shop", "store", "brand", "model",
	"review", "rating", "compare", "similar", "alternative",
	"discount", "sale", "offer", "deal", "shipping", "delivery",
	"warranty", "return", "refund", "order", "cart", "checkout",
	"track", "status", "policy", "faq", "question", "help",
	"support", "customer service", "payment", "billing",
}

var (
	tokenSplitPattern = regexp.MustCompile(`[^a-z0-9$.]+`)
	pricePattern      = regexp.MustCompile(`\$\s?\d+(\.\d+)?`)
)

// KeywordMatcher implements the cheap keyword stage of relevance
// classification: case-insensitive token matching for single-word
// keywords, substring matching for phrases, plus price-pattern tokens.
type KeywordMatcher struct {
	tokens  map[string]struct{}
	phrases []string
}

// NewKeywordMatcher builds a matcher from the given keyword list, or
// from DefaultDomainKeywords when the list is empty.
func NewKeywordMatcher(keywords []string) *KeywordMatcher {
	if len(keywords) == 0 {
		keywords = DefaultDomainKeywords
	}

	m := &KeywordMatcher{tokens: make(map[string]struct{}, len(keywords))}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			m.phrases = append(m.phrases, kw)
		} else {
			m.tokens[kw] = struct{}{}
		}
	}
	return m
}

// Matches reports whether the utterance contains any domain keyword.
func (m *KeywordMatcher) Matches(utterance string) bool {
	lower := strings.ToLower(utterance)
	if lower == "" {
		return false
	}

	if pricePattern.MatchString(lower) {
		return true
	}

	for _, phrase := range m.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	for _, token := range tokenize(lower) {
		if _, ok := m.tokens[token]; ok {
			return true
		}
	}
	return false
}

// tokenize splits a lowercased utterance into comparable word tokens,
// trimming trailing punctuation that survives the split.
func tokenize(lower string) []string {
	raw := tokenSplitPattern.Split(lower, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.Trim(t, ".$")
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
