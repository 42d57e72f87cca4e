// Package sanitize scans text for personally identifiable information and
// produces anonymized copies. It drives a pluggable recognition Engine
// (local regex bundles, a remote NER service, a local LLM) one language pass
// at a time and classifies every invocation as Clean, Found or Failed.
//
// Usage:
//
//	s := sanitize.New(engine)
//	out := s.Detect(ctx, text, []sanitize.Language{sanitize.English})
//	os.Exit(out.ExitCode())
package sanitize

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"
)

// Sanitizer is the top-level object created once at startup.
type Sanitizer struct {
	scanner  *Scanner
	pipeline *Pipeline
}

// New creates a Sanitizer whose scanner and pipeline share engine.
func New(engine Engine, opts ...ScannerOption) *Sanitizer {
	return &Sanitizer{
		scanner:  NewScanner(engine, opts...),
		pipeline: NewPipeline(engine),
	}
}

// Detect scans text in every language of langs and classifies the result.
func (s *Sanitizer) Detect(ctx context.Context, text string, langs []Language) Outcome {
	result, err := s.scanner.Scan(ctx, text, langs)
	out := Classify(result, err)
	logOutcome(ctx, "detect", langs, out)
	return out
}

// Anonymize classifies the original text and returns the document produced by
// the pipeline. Detection and transformation run independently over the same
// input. On Failed the returned text is always empty.
func (s *Sanitizer) Anonymize(ctx context.Context, text string, langs []Language, technique Technique) (string, Outcome) {
	if err := technique.validate(); err != nil {
		out := Classify(nil, err)
		logOutcome(ctx, "anonymize", langs, out)
		return "", out
	}

	result, err := s.scanner.Scan(ctx, text, langs)
	if err != nil {
		out := Classify(nil, err)
		logOutcome(ctx, "anonymize", langs, out)
		return "", out
	}

	doc, err := s.pipeline.Anonymize(ctx, text, langs, technique)
	if err != nil {
		out := Classify(nil, err)
		logOutcome(ctx, "anonymize", langs, out)
		return "", out
	}

	out := Classify(result, nil)
	logOutcome(ctx, "anonymize", langs, out)
	return doc, out
}

func logOutcome(ctx context.Context, op string, langs []Language, out Outcome) {
	if out.Status == Failed {
		slog.Warn("sanitize: "+op+" failed", "run_id", RunID(ctx), "languages", langs, "err", out.Err)
		return
	}
	slog.Info("sanitize: "+op,
		"run_id", RunID(ctx),
		"languages", langs,
		"status", out.Status,
		"entities", len(out.Entities),
	)
}

// Placeholder is the text a Replace pass substitutes for an entity of type typ.
func Placeholder(typ string) string {
	return "<" + typ + ">"
}

// Apply rewrites every span of text using technique. Spans with invalid
// offsets are ignored. Overlapping spans are merged into their union, which
// takes the type of the span that starts first, so no byte covered by any
// span survives. Engines that detect locally use it to implement ModeTransform.
func Apply(text string, spans []Span, technique Technique) string {
	spans = mergeOverlaps(validSpans(text, spans))
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp.Start])
		b.WriteString(substitute(text[sp.Start:sp.End], sp.Type, technique))
		last = sp.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func substitute(matched, typ string, technique Technique) string {
	if technique == Redact {
		return strings.Repeat("*", utf8.RuneCountInString(matched))
	}
	return Placeholder(typ)
}

// ResolveOverlaps returns spans sorted by start with overlaps removed. When two
// spans overlap, the one that starts first wins; on equal starts the longer one wins.
// It shapes detection reports; Apply covers the union of overlapping spans instead.
func ResolveOverlaps(spans []Span) []Span {
	sorted := sortSpans(spans)

	out := make([]Span, 0, len(sorted))
	lastEnd := -1
	for _, sp := range sorted {
		if sp.Start >= lastEnd {
			out = append(out, sp)
			lastEnd = sp.End
		}
	}
	return out
}

// mergeOverlaps returns spans sorted by start with every group of overlapping
// spans collapsed into one covering span. Adjacent spans stay separate.
func mergeOverlaps(spans []Span) []Span {
	sorted := sortSpans(spans)
	out := make([]Span, 0, len(sorted))
	for _, sp := range sorted {
		if n := len(out); n > 0 && sp.Start < out[n-1].End {
			if sp.End > out[n-1].End {
				out[n-1].End = sp.End
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}

// sortSpans orders a copy of spans by start, longer first on equal starts.
func sortSpans(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})
	return sorted
}

// validSpans filters out spans with invalid offsets or offsets that split a
// multi-byte rune.
func validSpans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		if !isRuneBoundary(text, sp.Start) || !isRuneBoundary(text, sp.End) {
			continue
		}
		out = append(out, sp)
	}
	return out
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
