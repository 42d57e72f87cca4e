package regex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

func newEngine(t *testing.T, extra ...Bundle) *Engine {
	t.Helper()
	e, err := New(extra...)
	require.NoError(t, err)
	return e
}

func detectTypes(t *testing.T, e *Engine, lang sanitize.Language, text string) map[string][]string {
	t.Helper()
	resp, err := e.Process(context.Background(), sanitize.Request{Text: text, Language: lang, Mode: sanitize.ModeDetect})
	require.NoError(t, err)
	require.Equal(t, text, resp.Text)
	out := map[string][]string{}
	for _, sp := range resp.Entities {
		out[sp.Type] = append(out[sp.Type], text[sp.Start:sp.End])
	}
	return out
}

func TestBuiltinBundlesCoverSupportedLanguages(t *testing.T) {
	e := newEngine(t)
	for _, l := range sanitize.SupportedLanguages {
		assert.True(t, e.Supports(l), "missing bundle for %s", l)
	}
	assert.False(t, e.Supports("fr"))
}

func TestDetect(t *testing.T) {
	e := newEngine(t)
	cases := []struct {
		name string
		lang sanitize.Language
		text string
		want map[string][]string
	}{
		{
			name: "person and email",
			lang: sanitize.English,
			text: "Contact John Smith at john@example.com",
			want: map[string][]string{"PERSON": {"John Smith"}, "EMAIL": {"john@example.com"}},
		},
		{
			name: "nothing",
			lang: sanitize.English,
			text: "Hello world",
			want: map[string][]string{},
		},
		{
			name: "nothing german",
			lang: sanitize.German,
			text: "Hello world",
			want: map[string][]string{},
		},
		{
			name: "honorific",
			lang: sanitize.English,
			text: "2024-05-01 INFO ticket opened by Dr. Watson from 221 Baker Street",
			want: map[string][]string{"PERSON": {"Watson"}, "ADDRESS": {"221 Baker Street"}},
		},
		{
			name: "us phone and ip",
			lang: sanitize.English,
			text: "callback (555) 123-4567 from 192.168.1.10",
			want: map[string][]string{"PHONE": {"(555) 123-4567"}, "IP_ADDRESS": {"192.168.1.10"}},
		},
		{
			name: "german log line",
			lang: sanitize.German,
			text: "Herr Müller wohnt in der Hauptstraße 12, Tel. 030 1234567",
			want: map[string][]string{
				"PERSON":  {"Müller"},
				"ADDRESS": {"Hauptstraße 12"},
				"PHONE":   {"030 1234567"},
			},
		},
		{
			name: "card and iban pass checksums",
			lang: sanitize.German,
			text: "card=4111 1111 1111 1111 iban=DE89 3704 0044 0532 0130 00",
			want: map[string][]string{
				"CREDIT_CARD": {"4111 1111 1111 1111"},
				"IBAN":        {"DE89 3704 0044 0532 0130 00"},
			},
		},
		{
			name: "card failing luhn is ignored",
			lang: sanitize.English,
			text: "order 4111 1111 1111 1112 shipped",
			want: map[string][]string{},
		},
		{
			name: "name at end of line",
			lang: sanitize.English,
			text: "login ok for John\nConnection reset by peer",
			want: map[string][]string{"PERSON": {"John"}},
		},
		{
			name: "title at end of line",
			lang: sanitize.German,
			text: "Kunde Herr Weber\nFehler beim Login",
			want: map[string][]string{"PERSON": {"Weber"}},
		},
		{
			name: "first name inside longer word",
			lang: sanitize.English,
			text: "Johnson & Johnson released a patch",
			want: map[string][]string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectTypes(t, e, tc.lang, tc.text))
		})
	}
}

func TestSpansAreOrderedAndInRange(t *testing.T) {
	e := newEngine(t)
	text := "mail jane@corp.io, Jane Doe, 10.0.0.1, Mrs Brown"
	resp, err := e.Process(context.Background(), sanitize.Request{Text: text, Language: sanitize.English})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Entities)

	prevEnd := 0
	for _, sp := range resp.Entities {
		assert.GreaterOrEqual(t, sp.Start, prevEnd)
		assert.Less(t, sp.Start, sp.End)
		assert.LessOrEqual(t, sp.End, len(text))
		prevEnd = sp.End
	}
}

func TestTransform(t *testing.T) {
	e := newEngine(t)
	text := "Contact John Smith at john@example.com"

	resp, err := e.Process(context.Background(), sanitize.Request{
		Text: text, Language: sanitize.English, Mode: sanitize.ModeTransform, Technique: sanitize.Replace,
	})
	require.NoError(t, err)
	assert.Equal(t, "Contact <PERSON> at <EMAIL>", resp.Text)

	resp, err = e.Process(context.Background(), sanitize.Request{
		Text: text, Language: sanitize.English, Mode: sanitize.ModeTransform, Technique: sanitize.Redact,
	})
	require.NoError(t, err)
	assert.Equal(t, "Contact ********** at ****************", resp.Text)
}

func TestTransformKeepsLineBreaks(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Process(context.Background(), sanitize.Request{
		Text:      "login ok for John\nConnection reset by peer",
		Language:  sanitize.English,
		Mode:      sanitize.ModeTransform,
		Technique: sanitize.Replace,
	})
	require.NoError(t, err)
	assert.Equal(t, "login ok for <PERSON>\nConnection reset by peer", resp.Text)
}

func TestScenarioEndToEnd(t *testing.T) {
	s := sanitize.New(newEngine(t))
	ctx := context.Background()
	en := []sanitize.Language{sanitize.English}
	text := "Contact John Smith at john@example.com"

	out := s.Detect(ctx, text, en)
	require.Equal(t, sanitize.Found, out.Status)
	assert.Equal(t, 1, out.ExitCode())

	doc, out := s.Anonymize(ctx, text, en, sanitize.Replace)
	require.Equal(t, sanitize.Found, out.Status)
	assert.NotContains(t, doc, "John Smith")
	assert.NotContains(t, doc, "john@example.com")

	out = s.Detect(ctx, "Hello world", en)
	assert.Equal(t, sanitize.Clean, out.Status)
	assert.Equal(t, 0, out.ExitCode())
}

func TestAnonymizedOutputRescansClean(t *testing.T) {
	s := sanitize.New(newEngine(t))
	ctx := context.Background()
	all := []sanitize.Language{sanitize.English, sanitize.German}

	inputs := []string{
		"Contact John Smith at john@example.com",
		"Herr Müller wohnt in der Hauptstraße 12, Tel. 030 1234567",
		"user=Mary Jones ip=10.1.2.3 card=4111 1111 1111 1111",
		"Frau Dr. Petra Schmidt, DE89 3704 0044 0532 0130 00, (555) 123-4567",
	}
	for _, technique := range []sanitize.Technique{sanitize.Replace, sanitize.Redact} {
		for _, in := range inputs {
			doc, out := s.Anonymize(ctx, in, all, technique)
			require.Equal(t, sanitize.Found, out.Status, in)

			again := s.Detect(ctx, doc, all)
			assert.Equal(t, sanitize.Clean, again.Status, "%s via %s -> %q", in, technique, doc)
		}
	}
}

func TestExtraBundleFromFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "patterns.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
bundles:
  - language: en
    first_names: [Quentin]
    rules:
      - type: employee_id
        pattern: 'EMP-\d{6}'
`), 0o644))

	extra, err := LoadFile(p)
	require.NoError(t, err)
	e := newEngine(t, extra...)

	got := detectTypes(t, e, sanitize.English, "badge EMP-123456 issued to Quentin")
	assert.Equal(t, []string{"EMP-123456"}, got["EMPLOYEE_ID"])
	assert.Equal(t, []string{"Quentin"}, got["PERSON"])
}

func TestBadBundles(t *testing.T) {
	cases := []struct {
		name   string
		bundle Bundle
		want   string
	}{
		{name: "bad regex", bundle: Bundle{Language: "en", Rules: []Rule{{Type: "X", Pattern: "("}}}, want: "X"},
		{name: "unknown check", bundle: Bundle{Language: "en", Rules: []Rule{{Type: "X", Pattern: "x", Check: "crc"}}}, want: "unknown check"},
		{name: "group out of range", bundle: Bundle{Language: "en", Rules: []Rule{{Type: "X", Pattern: "x", Group: 2}}}, want: "group"},
		{name: "missing pattern", bundle: Bundle{Language: "de", Rules: []Rule{{Type: "X"}}}, want: "needs type and pattern"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.bundle)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestLoadFileRequiresLanguage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(p, []byte("bundles:\n  - rules: []\n"), 0o644))
	_, err := LoadFile(p)
	require.ErrorContains(t, err, "no language")
}

func TestChecksums(t *testing.T) {
	assert.True(t, luhnValid("4111-1111-1111-1111"))
	assert.False(t, luhnValid("4111-1111-1111-1112"))
	assert.False(t, luhnValid("1234"))
	assert.True(t, ibanValid("GB82 WEST 1234 5698 7654 32"))
	assert.False(t, ibanValid("GB82 WEST 1234 5698 7654 33"))
}
