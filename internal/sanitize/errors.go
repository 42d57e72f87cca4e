package sanitize

import (
	"errors"
	"fmt"
)

var (
	ErrNoLanguages          = errors.New("no language selected")
	ErrUnsupportedLanguage  = errors.New("unsupported language")
	ErrDuplicateLanguage    = errors.New("duplicate language")
	ErrUnsupportedTechnique = errors.New("unsupported technique")
	ErrInvalidEntity        = errors.New("entity offsets out of range")
)

// ConfigurationError rejects a request before any engine call is made.
type ConfigurationError struct {
	Field string // "language" or "technique"
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RecognitionError reports a failed engine pass. It is always fatal to the
// scan or anonymize call that produced it.
type RecognitionError struct {
	Language Language
	Pass     int // 1-based position in the language list
	Mode     Mode
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition: %s pass %d (%s): %v", e.Mode, e.Pass, e.Language, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// InputError reports source text that could not be read or decoded.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("input: %v", e.Err)
	}
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }
