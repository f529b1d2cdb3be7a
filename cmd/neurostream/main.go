// Package main implements the neurostream command line entry point.
// Neurostream acquires biosignal chunks over NATS into rolling stream
// windows, extracts event-locked epochs from them and exposes the results
// over Prometheus metrics and an optional WebSocket tap.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/neurostream/neurostream/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "neurostream"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Real-time biosignal epoch extraction service",
		Long: `Neurostream turns a live biosignal feed into event-locked epochs.

Chunks published on NATS fill per-stream rolling windows; trigger onsets
detected in stim or event channels cut fixed windows around each event,
optionally detrended, baseline-corrected and amplitude-screened before they
reach consumers.

Commands:
  serve  run the acquisition service described by a configuration file
  play   replay an EDF recording onto the transport as a live stream
  check  validate a configuration file without starting anything`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("%s version %s (built %s)\n", appName, Version, BuildTime)
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("configuration valid: %d stream(s), %d epochs entr(ies)\n",
				len(cfg.Streams), len(cfg.Epochs))
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (text, json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration: the file named by --config
// (or defaults when omitted) with the log flags applied on top.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath == "" {
		def := config.Default()
		cfg = &def
	} else {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Log.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
