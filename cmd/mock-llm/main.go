// Package main implements a fixture-backed LLM server for offline runs of
// semtrip. It speaks the OpenAI chat completions format, so a semtrip
// endpoint with provider "openai" can point at it.
//
// Usage:
//
//	mock-llm --fixtures ./fixtures --port 11434
//
// Fixtures are named by model: "mock-itinerary.json" answers requests for
// model "mock-itinerary". Plain text fixtures (.txt, .md) serve prose
// answers such as destination analysis and tips.
//
// Numbered fixtures ("mock-itinerary.1.json", "mock-itinerary.2.json") are
// returned in order on successive calls; the base file then repeats.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const defaultFixtureDir = "/fixtures"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		fixtureDir string
		port       int
		latency    time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "Serve canned chat completions from fixture files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			if fixtureDir == "" {
				fixtureDir = os.Getenv("MOCK_LLM_FIXTURES")
			}
			if fixtureDir == "" {
				fixtureDir = defaultFixtureDir
			}

			fixtures, err := loadFixtures(fixtureDir)
			if err != nil {
				return fmt.Errorf("load fixtures from %s: %w", fixtureDir, err)
			}
			models := make([]string, 0, len(fixtures))
			for m := range fixtures {
				models = append(models, m)
			}
			sort.Strings(models)
			logger.Info("Loaded fixtures", "dir", fixtureDir, "models", models)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, fmt.Sprintf(":%d", port), newServer(fixtures, logger, latency), logger)
		},
	}

	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory containing fixture files (env MOCK_LLM_FIXTURES)")
	cmd.Flags().IntVar(&port, "port", 11434, "Port to listen on")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay added to every completion")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every request")
	return cmd
}

func serve(ctx context.Context, addr string, s *server, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mock LLM server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
