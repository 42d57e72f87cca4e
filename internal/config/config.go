package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Engine names accepted in PII_ENGINE.
const (
	EngineRegex = "regex" // local YAML rule bundles
	EngineNER   = "ner"   // remote NER service
	EngineLLM   = "llm"   // local OpenAI-compatible LLM
)

// Cfg holds all runtime configuration loaded from environment variables.
type Cfg struct {
	// Languages is the language selector: "en", "de", "all" or "de,en".
	// Validated by the sanitize package when a scan starts.
	Languages string // PII_LANGUAGES
	Technique string // PII_TECHNIQUE: replace | redact

	Engine       string // PII_ENGINE: regex | ner | llm
	PatternsFile string // PII_PATTERNS_FILE: extra YAML bundles for the regex engine

	// Remote NER service
	NERURL     string // PII_NER_URL=http://pii-ner:8001
	SigningKey string // PII_SIGNING_KEY: hex secp256k1 key; empty = unsigned

	// LLM engine
	LLMURL   string // PII_LLM_URL=http://ollama:11434
	LLMModel string // PII_LLM_MODEL=qwen2.5:0.5b

	ScanParallel bool          // PII_SCAN_PARALLEL=true runs detection languages concurrently
	Timeout      time.Duration // PII_TIMEOUT: bound on one scan/anonymize call
	LogLevel     slog.Level    // PII_LOG_LEVEL: debug | info | warn | error

	// Server
	ListenAddr string // e.g. :8080
}

// Load reads .env (if present) then environment variables and returns Cfg.
func Load() (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	languages := envOr("PII_LANGUAGES", "all")
	technique := strings.ToLower(envOr("PII_TECHNIQUE", "replace"))

	engine := strings.ToLower(envOr("PII_ENGINE", EngineRegex))
	switch engine {
	case EngineRegex, EngineNER, EngineLLM:
	default:
		return nil, fmt.Errorf("PII_ENGINE must be one of regex, ner, llm; got %q", engine)
	}

	nerURL := strings.TrimRight(envOr("PII_NER_URL", "http://pii-ner:8001"), "/")

	scanParallel, err := envBool("PII_SCAN_PARALLEL")
	if err != nil {
		return nil, err
	}

	timeout := 2 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("PII_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("PII_TIMEOUT must be a positive duration, got %q", raw)
		}
		timeout = d
	}

	level, err := parseLevel(envOr("PII_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	port := envOr("PORT", "8080")

	return &Cfg{
		Languages:    languages,
		Technique:    technique,
		Engine:       engine,
		PatternsFile: strings.TrimSpace(os.Getenv("PII_PATTERNS_FILE")),
		NERURL:       nerURL,
		SigningKey:   strings.TrimSpace(os.Getenv("PII_SIGNING_KEY")),
		LLMURL:       envOr("PII_LLM_URL", "http://ollama:11434"),
		LLMModel:     envOr("PII_LLM_MODEL", "qwen2.5:0.5b"),
		ScanParallel: scanParallel,
		Timeout:      timeout,
		LogLevel:     level,
		ListenAddr:   ":" + port,
	}, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("PII_LOG_LEVEL: %w", err)
	}
	return l, nil
}
