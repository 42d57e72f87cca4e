package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gonkalabs/pii-detector/internal/api"
	"github.com/gonkalabs/pii-detector/internal/config"
	"github.com/gonkalabs/pii-detector/internal/sanitize"
	"github.com/gonkalabs/pii-detector/internal/sanitize/llmclassifier"
	"github.com/gonkalabs/pii-detector/internal/sanitize/ner"
	"github.com/gonkalabs/pii-detector/internal/sanitize/regex"
	"github.com/gonkalabs/pii-detector/internal/signer"
)

var (
	version = "0.1.0"
	appName = "pii-detector"

	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow, color.Bold)
	colorCyan   = color.New(color.FgCyan)
)

func main() {
	c := &cli{}
	if err := c.rootCmd().Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(sanitize.Outcome{}.ExitCode())
	}
	os.Exit(c.exit)
}

// cli carries state shared by the subcommands.
type cli struct {
	engine string // --engine override
	cfg    *config.Cfg
	san    *sanitize.Sanitizer
	exit   int
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Detect and anonymize personal data in log files",
		Long: `Scans text log files for personal data (names, e-mail addresses, phone
numbers, addresses, card numbers, IBANs, IP addresses) in one or more
languages and writes anonymized copies.

Exit status: 0 = no PII found, 1 = PII found, 2 = failed.

Examples:
  pii-detector detect app.log --language de
  pii-detector anonymize app.log --output-file clean.log --technique redact
  pii-detector serve`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.engine, "engine", "", "recognition engine: regex, ner or llm (overrides PII_ENGINE)")

	root.AddCommand(c.detectCmd(), c.anonymizeCmd(), c.serveCmd())
	return root
}

// setup loads configuration, installs the logger and builds the engine.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.engine != "" {
		cfg.Engine = c.engine
	}
	c.cfg = cfg

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	c.san = sanitize.New(engine, sanitize.WithParallelScan(cfg.ScanParallel))
	slog.Debug("engine ready", "engine", cfg.Engine, "parallel", cfg.ScanParallel)
	return nil
}

func buildEngine(cfg *config.Cfg) (sanitize.Engine, error) {
	switch cfg.Engine {
	case config.EngineRegex:
		var extra []regex.Bundle
		if cfg.PatternsFile != "" {
			b, err := regex.LoadFile(cfg.PatternsFile)
			if err != nil {
				return nil, err
			}
			extra = b
		}
		return regex.New(extra...)

	case config.EngineNER:
		var opts []ner.Option
		if cfg.SigningKey != "" {
			s, err := signer.New(cfg.SigningKey)
			if err != nil {
				return nil, fmt.Errorf("signing key: %w", err)
			}
			opts = append(opts, ner.WithSigner(s))
			slog.Info("ner: signing requests", "address", s.Address())
		}
		slog.Info("ner engine", "url", cfg.NERURL)
		return ner.New(cfg.NERURL, opts...), nil

	case config.EngineLLM:
		slog.Info("llm engine", "url", cfg.LLMURL, "model", cfg.LLMModel)
		return llmclassifier.New(cfg.LLMURL, cfg.LLMModel), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

// runContext bounds one invocation by the configured timeout and tags it with
// a fresh run id.
func (c *cli) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := sanitize.WithRunID(parent, uuid.NewString())
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// ---------- detect ----------

func (c *cli) detectCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "detect <input_file>",
		Short: "Report personal data found in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.runContext(cmd.Context())
			defer cancel()

			out := detectFile(ctx, c.san, args[0], or(language, c.cfg.Languages))
			printDetect(cmd.OutOrStdout(), args[0], out)
			c.exit = out.ExitCode()
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language selector: en, de, all or a comma list (default PII_LANGUAGES)")
	return cmd
}

// ---------- anonymize ----------

func (c *cli) anonymizeCmd() *cobra.Command {
	var language, technique, outputFile string
	cmd := &cobra.Command{
		Use:   "anonymize <input_file>",
		Short: "Write an anonymized copy of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if outputFile == "" {
				colorRed.Fprintln(w, "❌ Error: '--output-file' is required for anonymization.")
				c.exit = sanitize.Outcome{}.ExitCode()
				return nil
			}

			ctx, cancel := c.runContext(cmd.Context())
			defer cancel()

			out := anonymizeFile(ctx, c.san, args[0], outputFile,
				or(language, c.cfg.Languages), or(technique, c.cfg.Technique))
			printAnonymize(w, args[0], outputFile, out)
			c.exit = out.ExitCode()
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language selector: en, de, all or a comma list (default PII_LANGUAGES)")
	cmd.Flags().StringVarP(&technique, "technique", "t", "", "replace or redact (default PII_TECHNIQUE)")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "where to write the anonymized copy")
	return cmd
}

// ---------- serve ----------

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve scan and anonymize over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve()
		},
	}
}

func (c *cli) serve() error {
	handler := api.New(c.san, api.Defaults{
		Languages: c.cfg.Languages,
		Technique: sanitize.Technique(c.cfg.Technique),
		Timeout:   c.cfg.Timeout,
	})

	mux := http.NewServeMux()
	handler.Register(mux)

	srv := &http.Server{
		Addr:         c.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: c.cfg.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()

		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("starting pii-detector server",
		"addr", c.cfg.ListenAddr,
		"engine", c.cfg.Engine,
		"languages", c.cfg.Languages,
		"technique", c.cfg.Technique,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// printSeparator is shared by the reports.
func printSeparator(w io.Writer) {
	colorCyan.Fprintln(w, "────────────────────────────────────────")
}
