package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

// execute runs the CLI with args against the built-in regex engine and
// returns its stdout and exit status.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	color.NoColor = true
	for _, k := range []string{"PII_LANGUAGES", "PII_TECHNIQUE", "PII_ENGINE", "PII_PATTERNS_FILE", "PII_SCAN_PARALLEL", "PII_TIMEOUT", "PII_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("PII_LOG_LEVEL", "error")

	c := &cli{}
	root := c.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return out.String() + err.Error(), 2
	}
	return out.String(), c.exit
}

func writeInput(t *testing.T, text string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
	return p
}

func TestDetectFound(t *testing.T) {
	in := writeInput(t, "Contact John Smith at john@example.com\n")
	out, code := execute(t, "detect", in, "--language", "en")

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "contains personal data")
	assert.Contains(t, out, `"John Smith" is a PERSON found at position 8-18. [en]`)
	assert.Contains(t, out, `"john@example.com" is a EMAIL found at position 22-38. [en]`)
	assert.Contains(t, out, "2 PII entities found")
}

func TestDetectReportsCharacterPositions(t *testing.T) {
	in := writeInput(t, "Herr Jürgen Müller wohnt Hauptstraße 5\n")
	out, code := execute(t, "detect", in, "--language", "de")

	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"Jürgen Müller" is a PERSON found at position 5-18. [de]`)
	assert.Contains(t, out, `"Hauptstraße 5" is a ADDRESS found at position 25-38. [de]`)
}

func TestDetectClean(t *testing.T) {
	in := writeInput(t, "Hello world\n")
	out, code := execute(t, "detect", in)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No PII found")
}

func TestDetectFailures(t *testing.T) {
	in := writeInput(t, "Hello world\n")
	cases := map[string][]string{
		"missing file":         {"detect", filepath.Join(t.TempDir(), "nope.log")},
		"unsupported language": {"detect", in, "--language", "fr"},
		"unknown engine":       {"detect", in, "--engine", "magic"},
		"no input argument":    {"detect"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, code := execute(t, args...)
			assert.Equal(t, 2, code)
		})
	}
}

func TestAnonymizeWritesOutput(t *testing.T) {
	in := writeInput(t, "Contact John Smith at john@example.com\n")
	dst := filepath.Join(t.TempDir(), "out", "clean.log")

	out, code := execute(t, "anonymize", in, "--output-file", dst, "--language", "en")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Output saved to")

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "Contact <PERSON> at <EMAIL>\n", string(got))
}

func TestAnonymizeCleanStillWritesCopy(t *testing.T) {
	in := writeInput(t, "Hello world\n")
	dst := filepath.Join(t.TempDir(), "clean.log")

	_, code := execute(t, "anonymize", in, "-o", dst, "--technique", "redact")
	assert.Equal(t, 0, code)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\n", string(got))
}

func TestAnonymizeFailuresWriteNothing(t *testing.T) {
	in := writeInput(t, "Contact John Smith\n")

	t.Run("missing output file", func(t *testing.T) {
		out, code := execute(t, "anonymize", in)
		assert.Equal(t, 2, code)
		assert.Contains(t, out, "'--output-file' is required")
	})

	t.Run("bad technique", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "clean.log")
		out, code := execute(t, "anonymize", in, "-o", dst, "--technique", "hash")
		assert.Equal(t, 2, code)
		assert.Contains(t, out, "Error anonymizing PII")
		assert.NoFileExists(t, dst)
	})

	t.Run("duplicate language", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "clean.log")
		_, code := execute(t, "anonymize", in, "-o", dst, "--language", "de,de")
		assert.Equal(t, 2, code)
		assert.NoFileExists(t, dst)
	})
}

// germanFailsEngine finds "John" in every pass and fails the German pass in
// the configured mode.
type germanFailsEngine struct {
	failMode sanitize.Mode
}

func (e germanFailsEngine) Process(_ context.Context, req sanitize.Request) (*sanitize.Response, error) {
	if req.Language == sanitize.German && req.Mode == e.failMode {
		return nil, errors.New("recognizer crashed")
	}
	return &sanitize.Response{
		Entities: []sanitize.Span{{Start: 0, End: 4, Type: "PERSON"}},
		Text:     sanitize.Apply(req.Text, []sanitize.Span{{Start: 0, End: 4, Type: "PERSON"}}, req.Technique),
	}, nil
}

func TestAnonymizeFailureOnSecondLanguagePersistsNothing(t *testing.T) {
	in := writeInput(t, "John logged in\n")
	for _, mode := range []sanitize.Mode{sanitize.ModeDetect, sanitize.ModeTransform} {
		t.Run(mode.String(), func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "clean.log")
			san := sanitize.New(germanFailsEngine{failMode: mode})

			r := anonymizeFile(context.Background(), san, in, dst, "en,de", "replace")
			assert.Equal(t, sanitize.Failed, r.Status)
			assert.Equal(t, 2, r.ExitCode())
			var re *sanitize.RecognitionError
			require.ErrorAs(t, r.Err, &re)
			assert.Equal(t, sanitize.German, re.Language)
			assert.NoFileExists(t, dst)
		})
	}
}
