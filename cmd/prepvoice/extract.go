package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/prepvoice/internal/config"
	"github.com/MrWong99/prepvoice/internal/interview"
	"github.com/MrWong99/prepvoice/internal/transcript"
)

// transcriptLine is one input line of the extract subcommand. Either
// speaker ("candidate", "interviewer" or "interviewer-agent", "system") or
// the voice-engine role ("user", "assistant", "system") may be given.
type transcriptLine struct {
	Speaker string `json:"speaker"`
	Role    string `json:"role"`
	Text    string `json:"text"`
}

type correctionOut struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
}

type extractOut struct {
	Spec        interview.Spec     `json:"spec"`
	Defaulted   []transcript.Field `json:"defaulted"`
	Corrections []correctionOut    `json:"corrections"`
}

// runExtract implements "prepvoice extract": it runs the transcript
// extractor over a saved transcript and prints the result as JSON.
func runExtract(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config supplying extraction settings")
	candidate := fs.String("candidate", "", "candidate id stamped on the spec")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: prepvoice extract [-config file] [-candidate id] transcript.json")
		return 2
	}

	var extraction config.ExtractionConfig
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "prepvoice: %v\n", err)
			return 1
		}
		extraction = cfg.Extraction
	}

	entries, err := readTranscript(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepvoice: %v\n", err)
		return 1
	}

	res := buildExtractor(extraction).Analyze(*candidate, entries)
	o := extractOut{
		Spec:        res.Spec,
		Defaulted:   res.Defaulted,
		Corrections: make([]correctionOut, 0, len(res.Corrections)),
	}
	if o.Defaulted == nil {
		o.Defaulted = []transcript.Field{}
	}
	for _, c := range res.Corrections {
		o.Corrections = append(o.Corrections, correctionOut(c))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		fmt.Fprintf(os.Stderr, "prepvoice: encode result: %v\n", err)
		return 1
	}
	return 0
}

func readTranscript(path string) ([]interview.TranscriptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var lines []transcriptLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	entries := make([]interview.TranscriptEntry, 0, len(lines))
	for i, l := range lines {
		sp := interview.SpeakerFromRole(l.Role)
		if l.Speaker != "" {
			var ok bool
			if sp, ok = interview.ParseSpeaker(l.Speaker); !ok {
				return nil, fmt.Errorf("parse transcript %s: entry %d: unknown speaker %q", path, i, l.Speaker)
			}
		}
		entries = append(entries, interview.TranscriptEntry{Speaker: sp, Text: l.Text})
	}
	return entries, nil
}
