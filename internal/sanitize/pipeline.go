package sanitize

import (
	"context"
	"errors"
	"log/slog"
)

// Pipeline applies transformation passes in language order. Pass i>1 always
// receives the text produced by pass i-1, never the original.
type Pipeline struct {
	engine Engine
}

// NewPipeline creates a Pipeline driving engine.
func NewPipeline(engine Engine) *Pipeline {
	return &Pipeline{engine: engine}
}

// Anonymize runs one transformation pass per language and returns the final
// document. If any pass fails the error is returned together with an empty
// string so that no partially anonymized text can reach the caller.
func (p *Pipeline) Anonymize(ctx context.Context, text string, langs []Language, technique Technique) (string, error) {
	if err := technique.validate(); err != nil {
		return "", err
	}
	if err := validateLanguages(langs); err != nil {
		return "", err
	}
	if err := checkEngineLanguages(p.engine, langs); err != nil {
		return "", err
	}

	current := text
	for i, lang := range langs {
		fail := func(err error) error {
			return &RecognitionError{Language: lang, Pass: i + 1, Mode: ModeTransform, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return "", fail(err)
		}

		resp, err := p.engine.Process(ctx, Request{
			Text:      current,
			Language:  lang,
			Mode:      ModeTransform,
			Technique: technique,
		})
		if err != nil {
			return "", fail(err)
		}
		if resp == nil {
			return "", fail(errors.New("engine returned no response"))
		}

		slog.Debug("sanitize: anonymize pass",
			"language", lang,
			"pass", i+1,
			"technique", technique,
			"in_len", len(current),
			"out_len", len(resp.Text),
		)
		current = resp.Text
	}
	return current, nil
}
