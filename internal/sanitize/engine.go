package sanitize

import "context"

// Mode selects what an engine pass does with the text.
type Mode int

const (
	ModeDetect    Mode = iota // report entities, leave the text alone
	ModeTransform             // return the text with entities rewritten
)

func (m Mode) String() string {
	if m == ModeTransform {
		return "anonymize"
	}
	return "detect"
}

// Span is one entity as reported by an engine, before the core tags it with
// the language of the pass.
type Span struct {
	Start int    // byte offset of the first character (UTF-8)
	End   int    // byte offset one past the last character
	Type  string // e.g. "PERSON", "EMAIL", "ADDRESS"
}

// Request is a single engine pass.
type Request struct {
	Text      string
	Language  Language
	Mode      Mode
	Technique Technique // only meaningful for ModeTransform
}

// Response is what an engine pass returns. Span offsets index Request.Text.
// In ModeTransform, Text is the fully rewritten document.
type Response struct {
	Entities []Span
	Text     string
}

// Engine is the recognition/anonymization capability the scanner and the
// pipeline drive. Implementations must be safe for concurrent use.
type Engine interface {
	Process(ctx context.Context, req Request) (*Response, error)
}

// LanguageSupporter is implemented by engines that only handle a subset of
// SupportedLanguages. The core checks it before the first pass.
type LanguageSupporter interface {
	Supports(lang Language) bool
}

// checkEngineLanguages returns a ConfigurationError if e declares that it
// cannot handle one of langs.
func checkEngineLanguages(e Engine, langs []Language) error {
	ls, ok := e.(LanguageSupporter)
	if !ok {
		return nil
	}
	for _, l := range langs {
		if !ls.Supports(l) {
			return &ConfigurationError{Field: "language", Value: string(l), Err: ErrUnsupportedLanguage}
		}
	}
	return nil
}

type runIDKey struct{}

// WithRunID attaches an invocation id to ctx. Remote engines forward it so
// their logs can be correlated with ours.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the id set by WithRunID, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
