package interview_test

import (
	"testing"

	"github.com/MrWong99/prepvoice/internal/interview"
)

func TestParseSpeaker(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   interview.Speaker
		wantOK bool
	}{
		{"candidate", interview.SpeakerCandidate, true},
		{"system", interview.SpeakerSystem, true},
		{"interviewer", interview.SpeakerInterviewer, true},
		{"Interviewer-Agent", interview.SpeakerInterviewer, true},
		{" candidate ", interview.SpeakerCandidate, true},
		{"user", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := interview.ParseSpeaker(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ParseSpeaker(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestSpeakerFromRole_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, role := range []string{"user", "assistant", "system"} {
		if got := interview.SpeakerFromRole(role).Role(); got != role {
			t.Errorf("SpeakerFromRole(%q).Role() = %q", role, got)
		}
	}
	if got := interview.SpeakerFromRole("tool"); got != interview.SpeakerSystem {
		t.Errorf("unknown role = %q, want system", got)
	}
}
