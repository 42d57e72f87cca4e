package regex

import (
	"embed"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

//go:embed bundles/*.yaml
var builtinFS embed.FS

// Bundle is the YAML description of one language's recognizer rules.
type Bundle struct {
	Language   sanitize.Language `yaml:"language"`
	Titles     []string          `yaml:"titles"`      // honorifics that precede a surname
	FirstNames []string          `yaml:"first_names"` // given names that start a PERSON
	Rules      []Rule            `yaml:"rules"`
}

// Rule is a single pattern producing entities of one type.
type Rule struct {
	Type    string `yaml:"type"`
	Pattern string `yaml:"pattern"`
	Group   int    `yaml:"group"` // capture group holding the entity; 0 = whole match
	Check   string `yaml:"check"` // optional post-match validation: luhn | iban
}

// patternsFile is the layout of a user supplied PII_PATTERNS_FILE.
type patternsFile struct {
	Bundles []Bundle `yaml:"bundles"`
}

// BuiltinBundles returns the bundles shipped with the binary.
func BuiltinBundles() ([]Bundle, error) {
	entries, err := builtinFS.ReadDir("bundles")
	if err != nil {
		return nil, fmt.Errorf("regex: read builtin bundles: %w", err)
	}
	var out []Bundle
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("bundles", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("regex: read %s: %w", e.Name(), err)
		}
		var b Bundle
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("regex: parse %s: %w", e.Name(), err)
		}
		out = append(out, b)
	}
	return out, nil
}

// LoadFile reads extra bundles from a YAML file of the form
//
//	bundles:
//	  - language: en
//	    first_names: [Quentin]
//	    rules:
//	      - type: EMPLOYEE_ID
//	        pattern: 'EMP-\d{6}'
func LoadFile(p string) ([]Bundle, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("regex: %w", err)
	}
	var f patternsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("regex: parse %s: %w", p, err)
	}
	for i, b := range f.Bundles {
		if b.Language == "" {
			return nil, fmt.Errorf("regex: %s: bundle %d has no language", p, i+1)
		}
	}
	return f.Bundles, nil
}

// rule is the compiled form of Rule.
type rule struct {
	typ      string
	re       *regexp.Regexp
	group    int
	check    func(string) bool
	boundary bool // reject matches followed directly by a letter
}

// namePart matches one capitalised name token, including umlauts.
const namePart = `\p{Lu}[\p{Ll}'-]+`

// gap separates the words of a name. Line breaks are excluded so a match
// never spans two log lines.
const gap = `[ \t]+`

// compile turns the merged bundle for one language into rules.
func compile(b Bundle) ([]rule, error) {
	var out []rule

	if len(b.Titles) > 0 {
		re, err := regexp.Compile(`(?:^|[^\p{L}])(?:` + alternation(b.Titles) + `)\.?` + gap + `(` + namePart + `(?:` + gap + namePart + `)?)`)
		if err != nil {
			return nil, fmt.Errorf("regex: %s titles: %w", b.Language, err)
		}
		out = append(out, rule{typ: "PERSON", re: re, group: 1, boundary: true})
	}
	if len(b.FirstNames) > 0 {
		re, err := regexp.Compile(`(?:^|[^\p{L}])((?:` + alternation(b.FirstNames) + `)(?:` + gap + namePart + `)?)`)
		if err != nil {
			return nil, fmt.Errorf("regex: %s first names: %w", b.Language, err)
		}
		out = append(out, rule{typ: "PERSON", re: re, group: 1, boundary: true})
	}

	for _, r := range b.Rules {
		if r.Type == "" || r.Pattern == "" {
			return nil, fmt.Errorf("regex: %s: rule needs type and pattern", b.Language)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("regex: %s %s: %w", b.Language, r.Type, err)
		}
		if r.Group < 0 || r.Group > re.NumSubexp() {
			return nil, fmt.Errorf("regex: %s %s: group %d out of range", b.Language, r.Type, r.Group)
		}
		cr := rule{typ: strings.ToUpper(r.Type), re: re, group: r.Group}
		switch strings.ToLower(r.Check) {
		case "":
		case "luhn":
			cr.check = luhnValid
		case "iban":
			cr.check = ibanValid
		default:
			return nil, fmt.Errorf("regex: %s %s: unknown check %q", b.Language, r.Type, r.Check)
		}
		out = append(out, cr)
	}
	return out, nil
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}

// merge folds extra bundles into base, keyed by language.
func merge(base []Bundle, extra []Bundle) map[sanitize.Language]Bundle {
	out := make(map[sanitize.Language]Bundle)
	for _, list := range [][]Bundle{base, extra} {
		for _, b := range list {
			lang := sanitize.Language(strings.ToLower(string(b.Language)))
			cur := out[lang]
			cur.Language = lang
			cur.Titles = append(cur.Titles, b.Titles...)
			cur.FirstNames = append(cur.FirstNames, b.FirstNames...)
			cur.Rules = append(cur.Rules, b.Rules...)
			out[lang] = cur
		}
	}
	return out
}
