package sanitize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Entity is a single PII finding tagged with the language pass that produced it.
// Start and End are UTF-8 byte offsets into the scanned text, used for slicing;
// reports convert them with CharOffsets.
type Entity struct {
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Type     string   `json:"type"`
	Language Language `json:"language"`
}

// Text returns the matched substring of source.
func (e Entity) Text(source string) string {
	return source[e.Start:e.End]
}

// CharOffsets returns the entity's position in source as character (code
// point) offsets.
func (e Entity) CharOffsets(source string) (start, end int) {
	start = utf8.RuneCountInString(source[:e.Start])
	end = start + utf8.RuneCountInString(source[e.Start:e.End])
	return start, end
}

// ScanResult holds entities in language order, then in engine order within a
// language. Overlapping findings from different languages are all kept.
type ScanResult []Entity

// CountByLanguage returns the number of entities each language pass reported.
func (r ScanResult) CountByLanguage() map[Language]int {
	out := make(map[Language]int)
	for _, e := range r {
		out[e.Language]++
	}
	return out
}

// Scanner runs detection passes over a text, one per language.
type Scanner struct {
	engine   Engine
	parallel bool
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithParallelScan runs the language passes concurrently. Results are still
// returned in language order.
func WithParallelScan(enabled bool) ScannerOption {
	return func(s *Scanner) { s.parallel = enabled }
}

// NewScanner creates a Scanner driving engine.
func NewScanner(engine Engine, opts ...ScannerOption) *Scanner {
	s := &Scanner{engine: engine}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan detects entities in text for every language in langs. The first failing
// pass aborts the scan and no partial result is returned.
func (s *Scanner) Scan(ctx context.Context, text string, langs []Language) (ScanResult, error) {
	if err := validateLanguages(langs); err != nil {
		return nil, err
	}
	if err := checkEngineLanguages(s.engine, langs); err != nil {
		return nil, err
	}

	if s.parallel && len(langs) > 1 {
		return s.scanParallel(ctx, text, langs)
	}

	result := ScanResult{}
	for i, lang := range langs {
		entities, err := s.pass(ctx, text, lang, i+1)
		if err != nil {
			return nil, err
		}
		result = append(result, entities...)
	}
	return result, nil
}

// scanParallel fans the passes out and reassembles them in language order.
// When passes fail, the error of the earliest language is returned, as in a
// sequential scan. A failure cancels only the passes after it, since their
// outcome can no longer change the result.
func (s *Scanner) scanParallel(ctx context.Context, text string, langs []Language) (ScanResult, error) {
	type result struct {
		idx      int
		entities []Entity
		err      error
	}
	ch := make(chan result, len(langs))

	cancels := make([]context.CancelFunc, len(langs))
	for i, lang := range langs {
		passCtx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		go func(ctx context.Context, i int, lang Language) {
			entities, err := s.pass(ctx, text, lang, i+1)
			ch <- result{idx: i, entities: entities, err: err}
		}(passCtx, i, lang)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	results := make([]result, len(langs))
	for range langs {
		r := <-ch
		results[r.idx] = r
		if r.err != nil {
			for _, cancel := range cancels[r.idx+1:] {
				cancel()
			}
		}
	}

	out := ScanResult{}
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, r.entities...)
	}
	return out, nil
}

// pass runs one detection pass and validates the reported offsets.
func (s *Scanner) pass(ctx context.Context, text string, lang Language, n int) ([]Entity, error) {
	fail := func(err error) error {
		return &RecognitionError{Language: lang, Pass: n, Mode: ModeDetect, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	resp, err := s.engine.Process(ctx, Request{Text: text, Language: lang, Mode: ModeDetect})
	if err != nil {
		return nil, fail(err)
	}
	if resp == nil {
		return nil, fail(errors.New("engine returned no response"))
	}

	out := make([]Entity, 0, len(resp.Entities))
	for _, sp := range resp.Entities {
		if sp.Start < 0 || sp.End <= sp.Start || sp.End > len(text) {
			return nil, fail(fmt.Errorf("%w: [%d,%d) in %d bytes", ErrInvalidEntity, sp.Start, sp.End, len(text)))
		}
		out = append(out, Entity{Start: sp.Start, End: sp.End, Type: sp.Type, Language: lang})
	}
	slog.Debug("sanitize: scan pass", "language", lang, "pass", n, "entities", len(out))
	return out, nil
}
