package sanitize

import (
	"strings"
)

// Language is an ISO 639-1 code selecting one recognizer pass.
type Language string

const (
	English Language = "en"
	German  Language = "de"
)

// AllLanguages is the selector value that expands to SupportedLanguages.
const AllLanguages = "all"

// SupportedLanguages lists every language in canonical processing order.
// "all" expands to exactly this slice, English before German.
var SupportedLanguages = []Language{English, German}

// IsSupported reports whether l is one of SupportedLanguages.
func (l Language) IsSupported() bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

func (l Language) String() string { return string(l) }

// ParseLanguages turns a selector into an ordered language list.
//
// Accepted forms:
//
//	"all"    every supported language in canonical order
//	"de"     a single code
//	"de,en"  a comma list, order preserved
func ParseLanguages(selector string) ([]Language, error) {
	selector = strings.TrimSpace(strings.ToLower(selector))
	if selector == "" {
		return nil, &ConfigurationError{Field: "language", Err: ErrNoLanguages}
	}
	if selector == AllLanguages {
		out := make([]Language, len(SupportedLanguages))
		copy(out, SupportedLanguages)
		return out, nil
	}

	var langs []Language
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		langs = append(langs, Language(part))
	}
	if err := validateLanguages(langs); err != nil {
		return nil, err
	}
	return langs, nil
}

// validateLanguages enforces a non-empty, duplicate-free list of supported codes.
func validateLanguages(langs []Language) error {
	if len(langs) == 0 {
		return &ConfigurationError{Field: "language", Err: ErrNoLanguages}
	}
	seen := make(map[Language]bool, len(langs))
	for _, l := range langs {
		if !l.IsSupported() {
			return &ConfigurationError{Field: "language", Value: string(l), Err: ErrUnsupportedLanguage}
		}
		if seen[l] {
			return &ConfigurationError{Field: "language", Value: string(l), Err: ErrDuplicateLanguage}
		}
		seen[l] = true
	}
	return nil
}

// Technique selects how a transformation pass rewrites detected spans.
// The core passes it through to the engine uninterpreted.
type Technique string

const (
	Replace Technique = "replace" // substitute a <TYPE> placeholder
	Redact  Technique = "redact"  // mask every rune
)

// ParseTechnique validates a technique name.
func ParseTechnique(s string) (Technique, error) {
	t := Technique(strings.TrimSpace(strings.ToLower(s)))
	if err := t.validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t Technique) validate() error {
	switch t {
	case Replace, Redact:
		return nil
	}
	return &ConfigurationError{Field: "technique", Value: string(t), Err: ErrUnsupportedTechnique}
}
