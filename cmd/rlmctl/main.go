// Package main provides the rlmctl CLI: a driver for the Recursive
// Language-Model execution core.
//
// # Basic Usage
//
//	rlmctl run --context notes.txt --prompt "What's the total revenue?"
//
// Configuration can be provided via a YAML file (--config) or environment
// variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, CEREBRAS_API_KEY,
// GOOGLE_API_KEY, OPENROUTER_API_KEY).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rlm-core/rlm/internal/config"
	"github.com/rlm-core/rlm/internal/llm/providers"
	"github.com/rlm-core/rlm/internal/observability"
	"github.com/rlm-core/rlm/internal/rlm"
)

var (
	version = "dev"

	configPath  string
	providerTag string
	contextPath string
	prompt      string
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	rootCmd := buildRootCmd(&logger)
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("command execution failed")
		os.Exit(1)
	}
}

func buildRootCmd(logger *zerolog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "rlmctl",
		Short:   "rlmctl drives the recursive language-model execution core",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&providerTag, "provider", "anthropic", "provider tag: anthropic, openai, gemini, cerebras, openrouter, local")

	rootCmd.AddCommand(buildRunCmd(logger))
	return rootCmd
}

func buildRunCmd(logger *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the iteration loop over a document and print the enriched event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRLM(cmd.Context(), logger)
		},
	}
	cmd.Flags().StringVar(&contextPath, "context", "", "path to the document file (omit to read stdin)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "the question to answer")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func runRLM(ctx context.Context, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	docContext, err := readContext(contextPath)
	if err != nil {
		return fmt.Errorf("reading context: %w", err)
	}

	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})
	provider, err := providers.Build(providerTag, cfg, httpClient)
	if err != nil {
		return fmt.Errorf("building provider %q: %w", providerTag, err)
	}

	logger.Info().Str("provider", providerTag).Str("model", modelForProvider(cfg, providerTag)).Msg("starting run")

	streamLogger := rlm.NewStreamLogger(64)
	controller := &rlm.Controller{
		Provider:          provider,
		Model:             modelForProvider(cfg, providerTag),
		Logger:            streamLogger,
		NewSandbox:        rlm.NewGojaSandbox(provider, modelForProvider(cfg, providerTag), cfg.RLM.SandboxTimeout, cfg.RLM.BatchConcurrency),
		MaxIterations:     cfg.RLM.MaxIterations,
		SandboxTimeout:    cfg.RLM.SandboxTimeout,
		BatchConcurrency:  cfg.RLM.BatchConcurrency,
		MaxRecursionDepth: cfg.RLM.MaxRecursionDepth,
		TruncationBudget:  cfg.RLM.TruncationBudget,
		ProviderTag:       providerTag,
		Environment:       "cli",
	}

	events := streamLogger.StreamIterations(ctx, controller.Run, docContext, prompt)
	return printEvents(os.Stdout, events)
}

func printEvents(w io.Writer, events <-chan rlm.Event) error {
	enc := json.NewEncoder(w)
	for e := range events {
		envelope := map[string]any{"type": e.Type, "timestamp": e.Timestamp}
		if e.IterationData != nil {
			edu := rlm.Enrich(*e.IterationData)
			envelope["iteration"] = e.IterationData
			envelope["phase"] = edu.Phase
			envelope["education"] = edu
		}
		if e.Metadata != nil {
			envelope["metadata"] = e.Metadata
		}
		if e.Error != "" {
			envelope["error"] = e.Error
		}
		if err := enc.Encode(envelope); err != nil {
			return err
		}
	}
	return nil
}

func readContext(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func modelForProvider(cfg config.Config, tag string) string {
	switch tag {
	case "openai":
		return cfg.OpenAI.Model
	case "cerebras":
		return cfg.Cerebras.Model
	case "openrouter":
		return cfg.OpenRouter.Model
	case "local":
		return cfg.Local.Model
	case "gemini", "google":
		return cfg.Google.Model
	default:
		return cfg.Anthropic.Model
	}
}
