package transcript

import (
	"regexp"
	"strings"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// Labelled-field patterns. Plain fields stop at the first comma or newline;
// the tech stack runs to the end of the line because its value is itself a
// comma list.
var (
	roleRe      = regexp.MustCompile(`(?i)\brole:[ \t]*([^,\n]+)`)
	levelRe     = regexp.MustCompile(`(?i)\blevel:[ \t]*([^,\n]+)`)
	typeRe      = regexp.MustCompile(`(?i)\btype:[ \t]*([^,\n]+)`)
	techStackRe = regexp.MustCompile(`(?i)\btech[ \t]+stack:[ \t]*([^\n]+)`)

	questionLineRe = regexp.MustCompile(`^(\d+\.|-)\s+(.+)$`)
)

// fields is the partial record accumulated while scanning a transcript.
// Zero values mean "not seen yet".
type fields struct {
	role      string
	level     string
	typ       string
	techStack []string
	questions []string
}

// scan reduces entries, in order, into a partial record. Every field is
// overwritten by the latest entry that carries it.
func scan(entries []interview.TranscriptEntry) fields {
	var f fields
	for _, entry := range entries {
		f = f.fold(entry.Text)
	}
	return f
}

// fold returns f updated with whatever text contributes.
func (f fields) fold(text string) fields {
	if v, ok := labelled(roleRe, text); ok {
		f.role = v
	}
	if v, ok := labelled(levelRe, text); ok {
		f.level = v
	}
	if v, ok := labelled(typeRe, text); ok {
		f.typ = v
	}
	if v, ok := labelled(techStackRe, text); ok {
		if stack := splitList(v); len(stack) > 0 {
			f.techStack = stack
		}
	}
	if qs := questionList(text); len(qs) > 0 {
		f.questions = qs
	}
	return f
}

// labelled returns the trimmed value of the first match of re in text.
func labelled(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	return v, v != ""
}

// splitList splits a comma list and drops empty items.
func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// questionList returns the numbered or bulleted lines of text with their
// markers stripped. Text without a "1." or "- " anywhere is not considered a
// list at all.
func questionList(text string) []string {
	if !strings.Contains(text, "1.") && !strings.Contains(text, "- ") {
		return nil
	}
	var out []string
	for line := range strings.SplitSeq(text, "\n") {
		m := questionLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if q := strings.TrimSpace(m[2]); q != "" {
			out = append(out, q)
		}
	}
	return out
}
