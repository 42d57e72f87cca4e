// Package logfile reads log files into memory for scanning and persists
// anonymized copies.
package logfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

var (
	ErrBinary      = errors.New("binary file")
	ErrInvalidUTF8 = errors.New("not valid UTF-8 text")
)

// sniffLen is how many leading bytes filetype needs to recognise a format.
const sniffLen = 262

// Read loads path as text. UTF-8 (with or without BOM) and UTF-16 with a BOM
// are accepted; anything else fails with *sanitize.InputError.
func Read(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", &sanitize.InputError{Path: path, Err: err}
	}
	text, err := Decode(raw)
	if err != nil {
		return "", &sanitize.InputError{Path: path, Err: err}
	}
	return text, nil
}

// Decode converts raw file contents to a UTF-8 string.
func Decode(raw []byte) (string, error) {
	head := raw
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		return "", fmt.Errorf("%w: %s (%s)", ErrBinary, kind.Extension, kind.MIME.Value)
	}

	if !hasUTF16BOM(raw) && !utf8.Valid(raw) {
		return "", ErrInvalidUTF8
	}

	// BOMOverride switches to UTF-16 when a UTF-16 BOM is present and strips
	// a UTF-8 BOM; otherwise bytes pass through as UTF-8.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(raw), dec))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrBinary)
	}
	return string(out), nil
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE))
}

// Write stores text at path as UTF-8, creating parent directories. The file
// is written to a temporary sibling and renamed into place, so readers never
// observe a partially written document.
func Write(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logfile: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("logfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("logfile: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logfile: write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("logfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("logfile: rename into %s: %w", path, err)
	}
	return nil
}
