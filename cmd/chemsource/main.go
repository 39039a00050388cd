// Package main provides the chemsource binary entry point.
// Chemsource classifies chemical compounds by where they are used, from
// Wikipedia and PubMed context and one LLM call.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/chemsource/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "chemsource"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Classify chemical compounds by use",
		Long: `Chemsource classifies a chemical compound as any combination of
MEDICAL, ENDOGENOUS, FOOD, PERSONAL CARE and INDUSTRIAL.

It retrieves descriptive text from Wikipedia and/or PubMed, builds a
prompt and asks a language model for the categories. The model answers
INFO when the retrieved text is not enough to decide.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(
		retrieveCmd(c),
		classifyCmd(c),
		runCmd(c),
		serveCmd(c),
		configCmd(c),
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

// load reads the layered configuration and installs the process logger.
// Flags win over the configured log settings.
func (c *cli) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	bootstrap := newLogger(stderr, c.logLevel, c.logFormat)

	cfg, err := config.NewLoader(bootstrap).Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}

	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}

	logger := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newLogger builds a text or JSON slog logger. Unknown values fall back to info/text.
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
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
