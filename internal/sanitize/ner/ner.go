// Package ner provides a sanitize.Engine backed by a remote NER service over
// HTTP. Unlike a best-effort redaction layer, every transport or protocol
// failure is returned to the caller: an unreachable recognizer must never
// look like a clean document.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
	"github.com/gonkalabs/pii-detector/internal/signer"
)

// maxAttempts bounds how many replicas one pass may try.
const maxAttempts = 3

// Client calls the recognizer's /process endpoint. Requests rotate across
// the configured replicas; a replica that is unreachable or answers 5xx is
// skipped in favour of the next one.
type Client struct {
	replicas *replicas
	http     *http.Client
	signer   *signer.Signer // nil = unsigned requests
}

// Option configures a Client.
type Option func(*Client)

// WithSigner signs every request body with s.
func WithSigner(s *signer.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for baseURLs, a comma-separated list of recognizer
// base URLs (e.g. "http://pii-ner:8001" or "http://ner-a:8001,http://ner-b:8001").
func New(baseURLs string, opts ...Option) *Client {
	c := &Client{
		replicas: newReplicas(baseURLs),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type processRequest struct {
	Text      string `json:"text"`
	Language  string `json:"language"`
	Mode      string `json:"mode"`
	Technique string `json:"technique,omitempty"`
}

type processResponse struct {
	Entities []nerEntity `json:"entities"`
	Text     *string     `json:"text"`
}

type nerEntity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

// attemptError marks failures worth retrying on another replica.
type attemptError struct {
	err       error
	retryable bool
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// Process sends one pass to the recognizer. The recognizer reports entity
// offsets in characters (code points); they are converted to byte offsets
// into req.Text.
// It is safe for concurrent use.
func (c *Client) Process(ctx context.Context, req sanitize.Request) (*sanitize.Response, error) {
	wire := processRequest{
		Text:     req.Text,
		Language: string(req.Language),
		Mode:     req.Mode.String(),
	}
	if req.Mode == sanitize.ModeTransform {
		wire.Technique = string(req.Technique)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}

	urls := c.replicas.order()
	if len(urls) == 0 {
		return nil, errors.New("ner: no recognizer URL configured")
	}
	if len(urls) > maxAttempts {
		urls = urls[:maxAttempts]
	}

	var result *processResponse
	var lastErr error
	for attempt, url := range urls {
		result, err = c.do(ctx, url, body, req)
		if err == nil {
			break
		}
		lastErr = err
		var ae *attemptError
		if !errors.As(err, &ae) || !ae.retryable || ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("ner: request failed, trying next replica", "attempt", attempt+1, "url", url, "err", err)
	}
	if result == nil {
		return nil, lastErr
	}

	out := &sanitize.Response{
		Entities: make([]sanitize.Span, 0, len(result.Entities)),
		Text:     req.Text,
	}
	if len(result.Entities) > 0 {
		offsets := byteOffsets(req.Text)
		for _, e := range result.Entities {
			out.Entities = append(out.Entities, sanitize.Span{
				Start: offsets.at(e.Start),
				End:   offsets.at(e.End),
				Type:  e.Type,
			})
		}
	}
	if req.Mode == sanitize.ModeTransform {
		if result.Text == nil {
			return nil, errors.New("ner: anonymize response has no text")
		}
		out.Text = *result.Text
	}
	return out, nil
}

// do executes one signed request against a single replica.
func (c *Client) do(ctx context.Context, url string, body []byte, req sanitize.Request) (*processResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := sanitize.RunID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}
	if c.signer != nil {
		sig, ts, err := c.signer.Sign(body)
		if err != nil {
			return nil, fmt.Errorf("ner: %w", err)
		}
		httpReq.Header.Set("Authorization", sig)
		httpReq.Header.Set("X-Requester-Address", c.signer.Address())
		httpReq.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	}

	slog.Debug("ner: request", "url", url, "language", req.Language, "mode", req.Mode, "text_len", len(req.Text))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("ner: recognizer unreachable: %w", err), retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &attemptError{
			err:       fmt.Errorf("ner: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			retryable: resp.StatusCode >= 500,
		}
	}

	var result processResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ner: decode: %w", err)
	}
	return &result, nil
}

// runeIndex maps character offsets of a text to byte offsets.
type runeIndex []int

func byteOffsets(text string) runeIndex {
	idx := make(runeIndex, 0, len(text)+1)
	for i := range text {
		idx = append(idx, i)
	}
	return append(idx, len(text))
}

// at returns the byte offset of character n, or -1 when n is out of range so
// the scanner rejects the entity.
func (r runeIndex) at(n int) int {
	if n < 0 || n >= len(r) {
		return -1
	}
	return r[n]
}
