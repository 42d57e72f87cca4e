// Package regex provides a local, rule-based sanitize.Engine. Rules come from
// per-language YAML bundles compiled into the binary, optionally extended by a
// user supplied patterns file.
package regex

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

// Engine detects entities with compiled regular expressions.
// It is safe for concurrent use.
type Engine struct {
	rules map[sanitize.Language][]rule
}

// New builds an Engine from the builtin bundles plus any extra bundles.
func New(extra ...Bundle) (*Engine, error) {
	builtin, err := BuiltinBundles()
	if err != nil {
		return nil, err
	}
	merged := merge(builtin, extra)

	e := &Engine{rules: make(map[sanitize.Language][]rule, len(merged))}
	for lang, b := range merged {
		rules, err := compile(b)
		if err != nil {
			return nil, err
		}
		e.rules[lang] = rules
		slog.Debug("regex: bundle compiled", "language", lang, "rules", len(rules))
	}
	return e, nil
}

// Supports reports whether a bundle exists for lang.
func (e *Engine) Supports(lang sanitize.Language) bool {
	_, ok := e.rules[lang]
	return ok
}

// Process implements sanitize.Engine.
func (e *Engine) Process(ctx context.Context, req sanitize.Request) (*sanitize.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rules, ok := e.rules[req.Language]
	if !ok {
		return nil, fmt.Errorf("regex: no bundle for language %q", req.Language)
	}

	spans := detect(req.Text, rules)
	resp := &sanitize.Response{Entities: sanitize.ResolveOverlaps(spans), Text: req.Text}
	if req.Mode == sanitize.ModeTransform {
		resp.Text = sanitize.Apply(req.Text, spans, req.Technique)
	}
	return resp, nil
}

// detect runs every rule and returns every accepted match, overlaps included.
func detect(text string, rules []rule) []sanitize.Span {
	var spans []sanitize.Span
	for _, r := range rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*r.group], m[2*r.group+1]
			if start < 0 || start >= end {
				continue
			}
			if r.boundary && end < len(text) {
				next, _ := utf8.DecodeRuneInString(text[end:])
				if unicode.IsLetter(next) {
					continue
				}
			}
			if r.check != nil && !r.check(text[start:end]) {
				continue
			}
			spans = append(spans, sanitize.Span{Start: start, End: end, Type: r.typ})
		}
	}
	return spans
}

// luhnValid reports whether the digits of s pass the Luhn checksum.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ibanValid applies the ISO 13616 mod-97 check.
func ibanValid(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	rearranged := s[4:] + s[:4]
	var b strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			fmt.Fprintf(&b, "%d", r-'A'+10)
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
