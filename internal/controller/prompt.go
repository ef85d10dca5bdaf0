package controller

import (
	"strings"

	"github.com/MrWong99/prepvoice/internal/interview"
)

// Template variable keys sent with [voice.Engine.Start].
const (
	VarUserName  = "username"
	VarUserID    = "userid"
	VarQuestions = "questions"
)

// FormatQuestions renders questions as a bullet list, one per line, for the
// interviewer prompt. Blank questions are dropped; no questions yield "".
func FormatQuestions(questions []string) string {
	var b strings.Builder
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(q)
	}
	return b.String()
}

// callTarget returns the engine target and template variables for a session
// described by cfg.
func callTarget(cfg Config) (string, map[string]string) {
	if cfg.Mode == interview.ModeInterview {
		return cfg.InterviewerID, map[string]string{
			VarQuestions: FormatQuestions(cfg.Questions),
		}
	}
	return cfg.WorkflowID, map[string]string{
		VarUserName: cfg.Candidate.Name,
		VarUserID:   cfg.Candidate.ID,
	}
}
