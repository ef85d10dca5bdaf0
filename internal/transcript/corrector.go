package transcript

import "strings"

// Correction captures a single tech-stack substitution.
type Correction struct {
	// Original is the item as spoken in the transcript.
	Original string

	// Corrected is the canonical vocabulary entry that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score in [0, 1]. Exact
	// case-insensitive hits report 1.
	Confidence float64
}

// PhoneticMatcher resolves a spoken term to a known vocabulary entry by
// pronunciation similarity. Implementations must be safe for concurrent use.
//
// When matched is false, corrected equals term unchanged and confidence is 0.
type PhoneticMatcher interface {
	Match(term string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

// Corrector aligns extracted technology names with a canonical vocabulary so
// that speech-to-text spellings ("go lang", "postgress") become the names the
// rest of the system expects.
//
// A Corrector is read-only after construction and safe for concurrent use.
type Corrector struct {
	matcher    PhoneticMatcher
	vocabulary []string
	exact      map[string]string
}

// NewCorrector returns a Corrector over vocabulary. matcher may be nil, in
// which case only exact case-insensitive hits are normalised.
func NewCorrector(matcher PhoneticMatcher, vocabulary []string) *Corrector {
	c := &Corrector{
		matcher: matcher,
		exact:   make(map[string]string, len(vocabulary)),
	}
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		c.vocabulary = append(c.vocabulary, v)
		c.exact[strings.ToLower(v)] = v
	}
	return c
}

// Correct returns items with every recognised term replaced by its canonical
// spelling, plus the list of substitutions made. Items that match nothing are
// kept as spoken. The input slice is not modified.
func (c *Corrector) Correct(items []string) ([]string, []Correction) {
	out := make([]string, len(items))
	corrections := []Correction{}
	for i, item := range items {
		out[i] = item
		if canon, ok := c.exact[strings.ToLower(item)]; ok {
			if canon != item {
				out[i] = canon
				corrections = append(corrections, Correction{Original: item, Corrected: canon, Confidence: 1})
			}
			continue
		}
		if c.matcher == nil || len(c.vocabulary) == 0 {
			continue
		}
		if canon, conf, ok := c.matcher.Match(item, c.vocabulary); ok {
			out[i] = canon
			corrections = append(corrections, Correction{Original: item, Corrected: canon, Confidence: conf})
		}
	}
	return out, corrections
}
