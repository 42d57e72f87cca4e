package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gonkalabs/pii-detector/internal/sanitize"
)

// maxBodyBytes bounds a single request document.
const maxBodyBytes = 16 << 20

// Defaults apply when a request leaves a field empty.
type Defaults struct {
	Languages string             // language selector, e.g. "all"
	Technique sanitize.Technique // anonymization technique
	Timeout   time.Duration      // per-request bound; zero = none
}

// Handler implements all HTTP endpoints.
type Handler struct {
	sanitizer *sanitize.Sanitizer
	defaults  Defaults
}

// New creates a Handler that serves scans through san.
func New(san *sanitize.Sanitizer, defaults Defaults) *Handler {
	return &Handler{sanitizer: san, defaults: defaults}
}

// Register mounts routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /v1/scan", h.scan)
	mux.HandleFunc("POST /v1/anonymize", h.anonymize)
}

// ---------- wire types ----------

type scanRequest struct {
	Text      string `json:"text"`
	Languages string `json:"languages"`
}

type anonymizeRequest struct {
	Text      string `json:"text"`
	Languages string `json:"languages"`
	Technique string `json:"technique"`
}

// entityJSON reports positions as character offsets into the request text.
type entityJSON struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Type     string `json:"type"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type scanResponse struct {
	Status   string       `json:"status"`
	ExitCode int          `json:"exit_code"`
	Entities []entityJSON `json:"entities"`
	Error    string       `json:"error,omitempty"`
}

type anonymizeResponse struct {
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Text     string `json:"text"`
	Error    string `json:"error,omitempty"`
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(w, r)
	defer cancel()

	var out sanitize.Outcome
	langs, err := sanitize.ParseLanguages(or(req.Languages, h.defaults.Languages))
	if err != nil {
		out = sanitize.Classify(nil, err)
	} else {
		out = h.sanitizer.Detect(ctx, req.Text, langs)
	}

	resp := scanResponse{
		Status:   out.Status.String(),
		ExitCode: out.ExitCode(),
		Entities: make([]entityJSON, 0, len(out.Entities)),
	}
	for _, e := range out.Entities {
		start, end := e.CharOffsets(req.Text)
		resp.Entities = append(resp.Entities, entityJSON{
			Start:    start,
			End:      end,
			Type:     e.Type,
			Language: string(e.Language),
			Text:     e.Text(req.Text),
		})
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, statusFor(out), resp)
}

func (h *Handler) anonymize(w http.ResponseWriter, r *http.Request) {
	var req anonymizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(w, r)
	defer cancel()

	var (
		doc string
		out sanitize.Outcome
	)
	technique, err := h.technique(req.Technique)
	if err == nil {
		var langs []sanitize.Language
		langs, err = sanitize.ParseLanguages(or(req.Languages, h.defaults.Languages))
		if err == nil {
			doc, out = h.sanitizer.Anonymize(ctx, req.Text, langs, technique)
		}
	}
	if err != nil {
		out = sanitize.Classify(nil, err)
	}

	resp := anonymizeResponse{
		Status:   out.Status.String(),
		ExitCode: out.ExitCode(),
		Text:     doc,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, statusFor(out), resp)
}

// ---------- helpers ----------

func (h *Handler) technique(raw string) (sanitize.Technique, error) {
	if raw == "" {
		raw = string(h.defaults.Technique)
	}
	if raw == "" {
		raw = string(sanitize.Replace)
	}
	return sanitize.ParseTechnique(raw)
}

// requestContext tags the request with a run id (echoed as X-Request-ID) and
// applies the configured timeout.
func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc) {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	ctx := sanitize.WithRunID(r.Context(), id)
	if h.defaults.Timeout > 0 {
		return context.WithTimeout(ctx, h.defaults.Timeout)
	}
	return context.WithCancel(ctx)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "failed to read body: "+err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// statusFor maps an outcome to an HTTP status. Clean and Found are both
// successful scans; the three-way result travels in the body.
func statusFor(out sanitize.Outcome) int {
	if out.Status != sanitize.Failed {
		return http.StatusOK
	}
	if out.IsConfigurationError() {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(out.Err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	slog.Debug("api: recognition failed", "err", out.Err)
	return http.StatusBadGateway
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
