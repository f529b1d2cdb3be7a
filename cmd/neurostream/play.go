package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neurostream/neurostream/metric"
	"github.com/neurostream/neurostream/natsclient"
	"github.com/neurostream/neurostream/player"
)

var (
	playCfg player.Config

	playCmd = &cobra.Command{
		Use:   "play",
		Short: "Replay an EDF recording onto the transport",
		Long: `Replay an EDF recording as a live chunk stream on NATS.

Channel names, types and the sampling rate are derived from the recording
header. Chunks are published at recorded cadence, so a serve instance
configured with a matching stream sees the recording as if it were live.

Examples:
  # Replay once at recorded speed
  neurostream play --file session.edf --stream eeg

  # Loop forever on a custom subject
  neurostream play --file session.edf --stream eeg --subject lab.eeg --loop`,
		RunE: runPlay,
	}
)

func init() {
	playCmd.Flags().StringVar(&playCfg.File, "file", "", "EDF recording to replay")
	playCmd.Flags().StringVar(&playCfg.StreamName, "stream", "", "stream name for the published chunks")
	playCmd.Flags().StringVar(&playCfg.Subject, "subject", "", "NATS subject (default neurostream.data.<stream>)")
	playCmd.Flags().IntVar(&playCfg.ChunkSize, "chunk-size", 0, "samples per published chunk")
	playCmd.Flags().BoolVar(&playCfg.Loop, "loop", false, "restart playback when the recording ends")
}

func runPlay(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flags override the config file's player section.
	pc := playCfg
	if cfg.Player != nil {
		if pc.File == "" {
			pc.File = cfg.Player.File
		}
		if pc.StreamName == "" {
			pc.StreamName = cfg.Player.StreamName
		}
		if pc.Subject == "" {
			pc.Subject = cfg.Player.Subject
		}
		if pc.ChunkSize == 0 {
			pc.ChunkSize = cfg.Player.ChunkSize
		}
		pc.Loop = pc.Loop || cfg.Player.Loop
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	natsURL := cfg.NATS.URL
	if envURL := os.Getenv(natsURLEnv); envURL != "" {
		natsURL = envURL
	}

	registry := metric.NewMetricsRegistry()
	natsClient, err := natsclient.NewClient(natsURL,
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry.CoreMetrics()),
		natsclient.WithClientName(cfg.NATS.Name+"-player"),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", natsURL)
	if err := natsClient.Connect(); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = natsClient.Close() }()

	p, err := player.NewPlayer(player.Deps{
		Name:            "player-" + pc.StreamName,
		Config:          pc,
		NATSClient:      natsClient,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := p.Start(signalCtx); err != nil {
		return err
	}

	select {
	case <-p.Done():
		slog.Info("Recording finished")
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}
	return p.Stop(shutdownTimeout)
}
