package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gonkalabs/pii-detector/internal/logfile"
	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

// report is a classified outcome plus the text the offsets refer to.
type report struct {
	sanitize.Outcome
	source string
}

// detectFile validates the selector, reads path and scans it.
func detectFile(ctx context.Context, san *sanitize.Sanitizer, path, selector string) report {
	langs, err := sanitize.ParseLanguages(selector)
	if err != nil {
		return report{Outcome: sanitize.Classify(nil, err)}
	}
	text, err := logfile.Read(path)
	if err != nil {
		return report{Outcome: sanitize.Classify(nil, err)}
	}
	return report{Outcome: san.Detect(ctx, text, langs), source: text}
}

// anonymizeFile anonymizes path into outPath. The output is written only when
// the outcome is not Failed.
func anonymizeFile(ctx context.Context, san *sanitize.Sanitizer, path, outPath, selector, technique string) report {
	t, err := sanitize.ParseTechnique(technique)
	if err != nil {
		return report{Outcome: sanitize.Classify(nil, err)}
	}
	langs, err := sanitize.ParseLanguages(selector)
	if err != nil {
		return report{Outcome: sanitize.Classify(nil, err)}
	}
	text, err := logfile.Read(path)
	if err != nil {
		return report{Outcome: sanitize.Classify(nil, err)}
	}

	doc, out := san.Anonymize(ctx, text, langs, t)
	if out.Status == sanitize.Failed {
		return report{Outcome: out, source: text}
	}
	if err := logfile.Write(outPath, doc); err != nil {
		return report{Outcome: sanitize.Classify(nil, err), source: text}
	}
	return report{Outcome: out, source: text}
}

func printDetect(w io.Writer, path string, r report) {
	switch r.Status {
	case sanitize.Found:
		colorYellow.Fprintf(w, "⚠️ Caution: The file '%s' contains personal data!\n", path)
		printEntities(w, r)
	case sanitize.Clean:
		colorGreen.Fprintf(w, "✅ No PII found in '%s'.\n", path)
	default:
		colorRed.Fprintf(w, "❌ Error detecting PII: %v\n", r.Err)
	}
}

func printAnonymize(w io.Writer, path, outPath string, r report) {
	if r.Status == sanitize.Failed {
		colorRed.Fprintf(w, "❌ Error anonymizing PII: %v\n", r.Err)
		return
	}
	colorGreen.Fprintf(w, "✅ PII anonymized in '%s'. Output saved to '%s'\n", path, outPath)
	fmt.Fprintf(w, "   %s\n", r.Description())
}

func printEntities(w io.Writer, r report) {
	printSeparator(w)
	for _, e := range r.Entities {
		start, end := e.CharOffsets(r.source)
		fmt.Fprintf(w, "%q is a %s found at position %d-%d. [%s]\n",
			e.Text(r.source), e.Type, start, end, e.Language)
	}
	printSeparator(w)
	colorCyan.Fprintf(w, "%s\n", r.Description())
}
