// Package main provides the semtrip binary entry point.
// Semtrip generates multi-day travel itineraries from a destination, dates,
// party size, budget tier and travel styles.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/semtrip/config"
	"github.com/c360studio/semtrip/events"
	"github.com/c360studio/semtrip/export"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/seed"
	"github.com/c360studio/semtrip/trip"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semtrip"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Travel itinerary planner",
		Long: `Semtrip turns a travel request into a day-by-day itinerary.

A run passes through validation, destination analysis, day planning,
budget optimization, personalization and group collaboration. Provider
failures fall back to built-in data, so a valid request always yields
a complete plan.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML or TOML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(
		serveCmd(flags),
		planCmd(flags),
		seedCmd(flags),
		watchCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// newLogger builds the process logger from the log flags.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (f *globalFlags) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	logger := newLogger(cmd.ErrOrStderr(), f.logLevel, f.logFormat)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background run manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signalContext()
			defer stop()

			app := NewApp(cfg, logger)
			startErr := app.Start(ctx)
			if startErr == nil {
				logger.Info("Semtrip ready", "version", Version)
				startErr = app.Serve(ctx)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
			defer cancel()
			return errors.Join(startErr, app.Shutdown(shutdownCtx))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// planFlags collect a request from the command line.
type planFlags struct {
	destination string
	start       string
	end         string
	days        int
	party       int
	tier        string
	styles      []string
	interests   []string
	notes       string
	guideURL    string
	format      string
}

func (p *planFlags) request() (trip.PlanRequest, error) {
	start, err := trip.ParseDate(p.start)
	if err != nil {
		return trip.PlanRequest{}, err
	}
	var end trip.Date
	switch {
	case p.end != "":
		if end, err = trip.ParseDate(p.end); err != nil {
			return trip.PlanRequest{}, err
		}
	case p.days > 0:
		end = start.AddDays(p.days - 1)
	default:
		return trip.PlanRequest{}, errors.New("either --end or --days is required")
	}
	tier, err := trip.ParseTier(p.tier)
	if err != nil {
		return trip.PlanRequest{}, err
	}
	return trip.PlanRequest{
		Destination: p.destination,
		StartDate:   start,
		EndDate:     end,
		PartySize:   p.party,
		Tier:        tier,
		Styles:      p.styles,
		Interests:   p.interests,
		Notes:       p.notes,
		GuideURL:    p.guideURL,
	}, nil
}

func planCmd(flags *globalFlags) *cobra.Command {
	pf := &planFlags{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate one plan and print it",
		Example: `  semtrip plan -d 杭州 --start 2026-05-01 --days 3 --style 文化探索 --interest 历史
  semtrip plan -d 成都 --start 2026-10-01 --end 2026-10-04 --party 4 --tier economy -o ics > trip.ics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := pf.request()
			if err != nil {
				return err
			}
			var format export.Format
			if pf.format != "text" {
				if format, err = export.ParseFormat(pf.format); err != nil {
					return err
				}
			}
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			// A one-shot plan needs no persistence.
			cfg.Store.Backend = "memory"

			ctx, stop := signalContext()
			defer stop()

			app := NewApp(cfg, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = app.Shutdown(shutdownCtx)
			}()
			if err := app.Start(ctx); err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			plan, err := app.planner.RunWithProgress(ctx, req, func(p pipeline.Progress) {
				if p.Stage.IsTerminal() {
					return
				}
				fmt.Fprintf(stderr, "%s\n", subtleStyle.Render(fmt.Sprintf("[%3d%%] %s %s", p.Percent, p.Stage, p.Message)))
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format != "" {
				return export.Write(out, plan, format)
			}
			_, err = fmt.Fprint(out, renderPlan(plan))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&pf.destination, "destination", "d", "", "Destination city or country")
	f.StringVar(&pf.start, "start", "", "Start date (YYYY-MM-DD)")
	f.StringVar(&pf.end, "end", "", "End date (YYYY-MM-DD)")
	f.IntVar(&pf.days, "days", 0, "Trip length in days (alternative to --end)")
	f.IntVar(&pf.party, "party", 1, "Number of travelers")
	f.StringVar(&pf.tier, "tier", "comfort", "Budget tier (economy, comfort, luxury, unlimited)")
	f.StringSliceVar(&pf.styles, "style", nil, "Travel style, repeatable (文化探索, 美食之旅, 休闲度假, 冒险刺激, 摄影打卡, 夜生活)")
	f.StringSliceVar(&pf.interests, "interest", nil, "Interest, repeatable")
	f.StringVar(&pf.notes, "notes", "", "Special requirements")
	f.StringVar(&pf.guideURL, "guide-url", "", "Travel guide page to include in the analysis")
	f.StringVarP(&pf.format, "format", "o", "text", "Output format (text, json, markdown, ics)")
	_ = cmd.MarkFlagRequired("destination")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func seedCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Inspect reference data",
	}

	var dir string
	check := &cobra.Command{
		Use:   "check",
		Short: "Load the seed data and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Seed.Dir
			}
			return seedCheck(cmd.OutOrStdout(), dir, logger)
		},
	}
	check.Flags().StringVar(&dir, "dir", "", "Overlay directory (defaults to seed.dir)")
	cmd.AddCommand(check)
	return cmd
}

func seedCheck(w io.Writer, dir string, logger *slog.Logger) error {
	var files []string
	if dir != "" {
		var err error
		if files, err = seed.ListFiles(dir); err != nil {
			return err
		}
	}
	store, err := seed.NewStore(dir, logger)
	if err != nil {
		return err
	}
	data := store.Data()

	names := make([]string, 0, len(data.Destinations))
	for name := range data.Destinations {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, titleStyle.Render("Seed data"))
	fmt.Fprintf(w, "overlay files:  %d\n", len(files))
	for _, f := range files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	fmt.Fprintf(w, "destinations:   %d (%s)\n", len(names), strings.Join(names, ", "))
	fmt.Fprintf(w, "cities:         %d\n", len(data.Cities))
	fmt.Fprintf(w, "countries:      %d\n", len(data.Countries))
	fmt.Fprintf(w, "international:  %d\n", len(data.International))
	fmt.Fprintf(w, "cultural tips:  %d\n", len(data.CulturalTips))
	return nil
}

func watchCmd(flags *globalFlags) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow run progress events on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return fmt.Errorf("nats.url is not set (or export %s)", config.EnvNATSURL)
			}
			conn, err := events.Connect(cfg.NATS.URL, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, stop := signalContext()
			defer stop()

			out := cmd.OutOrStdout()
			err = events.Watch(ctx, conn, runID, func(ev events.Event) bool {
				line := fmt.Sprintf("%s %-10s %-17s %3d%% %s",
					ev.Timestamp.Format(time.TimeOnly), ev.Status, ev.Stage, ev.Progress, ev.Message)
				fmt.Fprintln(out, line)
				return runID == "" || !ev.Terminal()
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run id to follow (all runs when empty)")
	return cmd
}
