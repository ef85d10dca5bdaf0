// Package phonetic implements [transcript.PhoneticMatcher] for technology
// names using Double Metaphone codes and Jaro-Winkler similarity.
//
// Technology names are awkward for speech-to-text: "Node.js" comes back as
// "node js", "PostgreSQL" as "postgress", "Go" as "go lang". Terms are first
// normalised (lower-cased, punctuation such as "." and "-" turned into
// spaces), then:
//
//  1. A vocabulary entry is a phonetic candidate when any Double Metaphone code
//     of the spoken tokens overlaps a code of the entry's tokens. Candidates
//     are ranked by Jaro-Winkler and accepted above the phonetic threshold.
//  2. Without any phonetic candidate, the best pure Jaro-Winkler score is
//     accepted above the stricter fuzzy threshold.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.75
	defaultFuzzyThreshold    = 0.88
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.75.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a normalised spoken phrase or vocabulary entry.
type term struct {
	tokens []string
	joined string // tokens without separators, e.g. "nodejs"
	codes  map[string]struct{}
}

func newTerm(s string) term {
	tokens := tokenize(s)
	t := term{
		tokens: tokens,
		joined: strings.Join(tokens, ""),
		codes:  make(map[string]struct{}, len(tokens)*2),
	}
	for _, tok := range tokens {
		p, s := matchr.DoubleMetaphone(tok)
		if p != "" {
			t.codes[p] = struct{}{}
		}
		if s != "" {
			t.codes[s] = struct{}{}
		}
	}
	return t
}

// tokenize lower-cases s and splits it on anything that is not a letter or
// digit, so "React.js" and "react js" produce the same tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Match returns the vocabulary entry closest to spoken. When nothing clears
// the thresholds, spoken is returned unchanged with zero confidence.
func (m *Matcher) Match(spoken string, vocabulary []string) (string, float64, bool) {
	in := newTerm(spoken)
	if len(vocabulary) == 0 || in.joined == "" {
		return spoken, 0, false
	}

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, entry := range vocabulary {
		cand := newTerm(entry)
		if cand.joined == "" {
			continue
		}
		if cand.joined == in.joined {
			return entry, 1, true
		}

		score := similarity(in, cand)
		switch {
		case overlaps(in.codes, cand.codes):
			if score >= m.phoneticThreshold && (!phonetic || score > bestScore) {
				best, bestScore, phonetic = entry, score, true
			}
		case !phonetic:
			if score >= m.fuzzyThreshold && score > bestScore {
				best, bestScore = entry, score
			}
		}
	}

	if best == "" {
		return spoken, 0, false
	}
	return best, bestScore, true
}

// similarity is the highest Jaro-Winkler score over the joined forms and
// every token pair.
func similarity(a, b term) float64 {
	score := matchr.JaroWinkler(a.joined, b.joined, false)
	for _, x := range a.tokens {
		for _, y := range b.tokens {
			if s := matchr.JaroWinkler(x, y, false); s > score {
				score = s
			}
		}
	}
	return score
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
