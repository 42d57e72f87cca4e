// Package llmclassifier provides a sanitize.Engine that uses a local
// OpenAI-compatible LLM (e.g. Ollama with qwen2.5) to find PII that fixed
// patterns miss, such as names in free-form log messages.
//
// We ask the model to return the sensitive strings verbatim rather than byte
// offsets, because small models get offsets wrong. Go code locates all
// occurrences in the original text itself.
package llmclassifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

const systemPrompt = `Extract personal data from the log text. The text is written in %s.
Return a JSON array of objects {"text": "<exact substring>", "type": "<TYPE>"}. Return [] if nothing is found.

TYPE is one of:
- PERSON: full or partial person names (e.g. John Smith, Frau Schneider)
- EMAIL: email addresses
- PHONE: phone numbers
- ADDRESS: street addresses
- IBAN: bank account numbers
- CREDIT_CARD: payment card numbers
- IP_ADDRESS: IPv4 or IPv6 addresses
- CREDENTIAL: passwords, API keys, tokens

Do NOT flag: placeholders like <PERSON>, masked values like *****, hostnames, dates, log levels.

Return ONLY the JSON array. No explanation.

Example:
Input: "login failed for Jane Doe (jane@corp.io)"
Output: [{"text": "Jane Doe", "type": "PERSON"}, {"text": "jane@corp.io", "type": "EMAIL"}]`

var languageNames = map[sanitize.Language]string{
	sanitize.English: "English",
	sanitize.German:  "German",
}

var knownTypes = map[string]bool{
	"PERSON": true, "EMAIL": true, "PHONE": true, "ADDRESS": true,
	"IBAN": true, "CREDIT_CARD": true, "IP_ADDRESS": true, "CREDENTIAL": true,
}

// Classifier calls a local LLM to detect personal data.
type Classifier struct {
	url   string
	model string
	http  *http.Client
}

// New creates a Classifier.
// baseURL is the Ollama (or any OpenAI-compatible) server, e.g. "http://ollama:11434".
func New(baseURL, model string) *Classifier {
	return &Classifier{
		url:   strings.TrimRight(baseURL, "/") + "/v1/chat/completions",
		model: model,
		http: &http.Client{
			Timeout: 125 * time.Second,
		},
	}
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	// Hint to disable chain-of-thought thinking (Qwen3 and some others support this).
	// stripThinkBlock handles models that ignore it.
	Think bool `json:"think"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`         // Qwen3 via Ollama
			ReasoningContent string `json:"reasoning_content"` // Qwen3 direct API
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type finding struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Supports reports whether the prompt has a language name for lang.
func (c *Classifier) Supports(lang sanitize.Language) bool {
	_, ok := languageNames[lang]
	return ok
}

// Process implements sanitize.Engine. Transformation reuses the detected
// spans and rewrites them locally.
// It is safe for concurrent use.
func (c *Classifier) Process(ctx context.Context, req sanitize.Request) (*sanitize.Response, error) {
	spans, err := c.classify(ctx, req.Text, req.Language)
	if err != nil {
		return nil, err
	}
	resp := &sanitize.Response{Entities: sanitize.ResolveOverlaps(spans), Text: req.Text}
	if req.Mode == sanitize.ModeTransform {
		resp.Text = sanitize.Apply(req.Text, spans, req.Technique)
	}
	return resp, nil
}

func (c *Classifier) classify(ctx context.Context, text string, lang sanitize.Language) ([]sanitize.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	langName, ok := languageNames[lang]
	if !ok {
		return nil, fmt.Errorf("llmclassifier: unsupported language %q", lang)
	}
	slog.Debug("llmclassifier: classifying", "url", c.url, "model", c.model, "language", lang, "text_len", len(text))

	reqBody := openAIRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, langName)},
			// /no_think is Qwen3's control token to skip thinking and go straight to the answer.
			{Role: "user", Content: "Text to classify:\n" + text + "\n/no_think"},
		},
		Temperature: 0,
		MaxTokens:   4096,
		Think:       false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llmclassifier: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llmclassifier: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := sanitize.RunID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmclassifier: LLM unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("llmclassifier: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("llmclassifier: decode response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("llmclassifier: response has no choices")
	}

	choice := oaiResp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, fmt.Errorf("llmclassifier: response truncated by token limit")
	}

	// Qwen3 via Ollama puts thinking in "reasoning" and the answer in "content".
	// If content is empty fall back to the reasoning fields.
	raw := strings.TrimSpace(choice.Message.Content)
	if raw == "" {
		raw = strings.TrimSpace(choice.Message.Reasoning)
		if raw == "" {
			raw = strings.TrimSpace(choice.Message.ReasoningContent)
		}
	}

	content := stripCodeFence(stripThinkBlock(raw))
	if !strings.HasPrefix(content, "[") {
		content = extractJSONArray(content)
	}

	var findings []finding
	if err := json.Unmarshal([]byte(content), &findings); err != nil {
		return nil, fmt.Errorf("llmclassifier: could not parse LLM output: %w", err)
	}

	spans := locate(text, findings)
	slog.Debug("llmclassifier: detected", "language", lang, "findings", len(findings), "spans", len(spans))
	return spans, nil
}

// locate finds every whole-word occurrence of each finding in text.
func locate(text string, findings []finding) []sanitize.Span {
	var spans []sanitize.Span
	for _, f := range findings {
		val := strings.TrimSpace(f.Text)
		if val == "" || isPlaceholder(val) {
			continue
		}
		typ := strings.ToUpper(strings.TrimSpace(f.Type))
		if !knownTypes[typ] {
			typ = "PII"
		}
		start := 0
		for {
			idx := strings.Index(text[start:], val)
			if idx < 0 {
				break
			}
			abs := start + idx
			end := abs + len(val)
			if !isInsideToken(text, abs, end) {
				spans = append(spans, sanitize.Span{Start: abs, End: end, Type: typ})
			}
			start = end
		}
	}
	return spans
}

// isPlaceholder reports whether val is output of an earlier anonymization pass.
func isPlaceholder(val string) bool {
	if strings.Trim(val, "*") == "" {
		return true
	}
	return strings.HasPrefix(val, "<") && strings.HasSuffix(val, ">")
}

// isInsideToken reports whether span [start,end) sits inside a larger word.
// For example "sd@yandex.ru" inside "asd@yandex.ru" would return true.
func isInsideToken(text string, start, end int) bool {
	if start > 0 && !isBoundary(text[start-1]) {
		return true
	}
	if end < len(text) && !isBoundary(text[end]) {
		return true
	}
	return false
}

// isBoundary reports whether byte b is a word-boundary character.
func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '<', '>', ',', '.', ';', ':', '=', '(', ')', '[', ']', '{', '}', '"', '\'', '`':
		return true
	}
	return false
}

// extractJSONArray finds the outermost [...] substring in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// stripThinkBlock removes a <think>...</think> block that appears before
// the actual answer when thinking mode is active.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
