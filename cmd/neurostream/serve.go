package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neurostream/neurostream/component"
	"github.com/neurostream/neurostream/config"
	"github.com/neurostream/neurostream/epochs"
	"github.com/neurostream/neurostream/health"
	natsinput "github.com/neurostream/neurostream/input/nats"
	"github.com/neurostream/neurostream/metric"
	"github.com/neurostream/neurostream/natsclient"
	wsoutput "github.com/neurostream/neurostream/output/websocket"
	"github.com/neurostream/neurostream/stream"
)

const (
	natsURLEnv          = "NEUROSTREAM_NATS_URL"
	defaultPollInterval = 10 * time.Millisecond
	shutdownTimeout     = 10 * time.Second
	healthRefreshPeriod = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the acquisition service",
	Long: `Run the acquisition service described by the configuration file.

For every configured stream a NATS receiver feeds chunks into a rolling
window, every epochs entry extracts event-locked epochs from its stream in
the background, and the HTTP endpoint serves /metrics and /healthz. When the
WebSocket tap is enabled, extracted epochs are also broadcast to connected
viewers.`,
	RunE: runServe,
}

// pipeline holds everything the serve command wires together, in start order.
type pipeline struct {
	nats      *natsclient.Client
	registry  *metric.MetricsRegistry
	monitor   *health.Monitor
	streams   map[string]*stream.RingStream
	receivers []*natsinput.Receiver
	epochs    map[string]*epochs.EpochsStream
	intervals map[string]time.Duration
	tap       *wsoutput.Tap
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Streams) == 0 {
		return fmt.Errorf("configuration defines no streams; nothing to serve")
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	slog.Info("Starting neurostream",
		"version", Version,
		"config_path", configPath,
		"streams", len(cfg.Streams),
		"epochs", len(cfg.Epochs))

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.nats.Close() }()

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := p.start(signalCtx, cfg); err != nil {
		p.stop()
		return err
	}

	server := metric.NewServer(cfg.HTTP.Addr, "/metrics", p.registry, p.monitor.Handler(appName))
	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		return server.Stop()
	})
	g.Go(func() error {
		p.refreshHealth(gctx)
		return nil
	})

	slog.Info("Neurostream started", "metrics", server.Address())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	p.stop()
	if err := g.Wait(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("Neurostream shutdown complete")
	return nil
}

// buildPipeline constructs every component from the configuration without
// starting anything.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	natsURL := cfg.NATS.URL
	if envURL := os.Getenv(natsURLEnv); envURL != "" {
		natsURL = envURL
	}

	registry := metric.NewMetricsRegistry()

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry.CoreMetrics()),
		natsclient.WithClientName(cfg.NATS.Name),
	}
	if d := cfg.NATS.Timeout.Std(); d > 0 {
		opts = append(opts, natsclient.WithTimeout(d))
	}
	if d := cfg.NATS.ReconnectWait.Std(); d > 0 {
		opts = append(opts, natsclient.WithReconnectWait(d))
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}

	natsClient, err := natsclient.NewClient(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", natsURL)
	if err := natsClient.Connect(); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := &pipeline{
		nats:      natsClient,
		registry:  registry,
		monitor:   health.NewMonitor(),
		streams:   make(map[string]*stream.RingStream, len(cfg.Streams)),
		epochs:    make(map[string]*epochs.EpochsStream, len(cfg.Epochs)),
		intervals: make(map[string]time.Duration, len(cfg.Epochs)),
	}

	for i := range cfg.Streams {
		sc := &cfg.Streams[i]
		rs, err := stream.NewRingStream(&sc.Info, sc.BufSize,
			stream.WithLogger(logger),
			stream.WithMetrics(registry))
		if err != nil {
			return nil, fmt.Errorf("create stream %q: %w", sc.Info.Name, err)
		}
		if err := rs.Connect(); err != nil {
			return nil, fmt.Errorf("connect stream %q: %w", sc.Info.Name, err)
		}
		p.streams[sc.Info.Name] = rs

		recv, err := natsinput.NewReceiver(natsinput.Deps{
			Name:            "receiver-" + sc.Info.Name,
			Subject:         sc.Subject,
			NATSClient:      natsClient,
			Stream:          rs,
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create receiver for %q: %w", sc.Info.Name, err)
		}
		p.receivers = append(p.receivers, recv)
	}

	for i := range cfg.Epochs {
		ec := &cfg.Epochs[i]
		src := p.streams[ec.Stream]

		var events stream.Stream
		if ec.EventStream != "" {
			events = p.streams[ec.EventStream]
		}

		es, err := epochs.New(src, events, ec.Settings,
			epochs.WithLogger(logger),
			epochs.WithMetrics(registry))
		if err != nil {
			return nil, fmt.Errorf("create epochs for %q: %w", ec.Stream, err)
		}
		p.epochs[ec.Stream] = es

		interval := ec.PollInterval.Std()
		if interval == 0 {
			interval = defaultPollInterval
		}
		p.intervals[ec.Stream] = interval
	}

	if cfg.WebSocket.Enabled {
		tap, err := wsoutput.NewTap(wsoutput.Deps{
			Name:            "ws-tap",
			Addr:            cfg.WebSocket.Addr,
			Path:            cfg.WebSocket.Path,
			Source:          p.epochs[cfg.WebSocket.Stream],
			StreamName:      cfg.WebSocket.Stream,
			PollInterval:    cfg.WebSocket.PollInterval.Std(),
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create websocket tap: %w", err)
		}
		p.tap = tap
	}

	return p, nil
}

// start brings the pipeline up: receivers first so chunks flow, then the
// epochs pollers, then the viewer tap.
func (p *pipeline) start(ctx context.Context, cfg *config.Config) error {
	for _, recv := range p.receivers {
		if err := recv.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", recv.Meta().Name, err)
		}
	}

	for name, es := range p.epochs {
		if err := es.Connect(p.intervals[name]); err != nil {
			return fmt.Errorf("connect epochs for %q: %w", name, err)
		}
		slog.Info("Epochs extraction running", "stream", name, "poll_interval", p.intervals[name])
	}

	if p.tap != nil {
		if err := p.tap.Start(ctx); err != nil {
			return fmt.Errorf("start websocket tap: %w", err)
		}
		slog.Info("WebSocket tap listening", "addr", cfg.WebSocket.Addr)
	}

	return nil
}

// stop tears the pipeline down in reverse start order. Errors are logged
// rather than returned so every component gets its chance to stop.
func (p *pipeline) stop() {
	if p.tap != nil {
		if err := p.tap.Stop(shutdownTimeout); err != nil {
			slog.Error("Stopping websocket tap failed", "error", err)
		}
	}

	for name, es := range p.epochs {
		if err := es.Disconnect(); err != nil {
			slog.Error("Disconnecting epochs failed", "stream", name, "error", err)
		}
	}

	for _, recv := range p.receivers {
		if err := recv.Stop(shutdownTimeout); err != nil {
			slog.Error("Stopping receiver failed", "name", recv.Meta().Name, "error", err)
		}
	}

	for name, rs := range p.streams {
		if err := rs.Disconnect(); err != nil {
			slog.Error("Disconnecting stream failed", "stream", name, "error", err)
		}
	}
}

// refreshHealth periodically snapshots component health into the monitor
// backing /healthz.
func (p *pipeline) refreshHealth(ctx context.Context) {
	comps := make([]component.Component, 0, len(p.receivers)+1)
	for _, recv := range p.receivers {
		comps = append(comps, recv)
	}
	if p.tap != nil {
		comps = append(comps, p.tap)
	}

	ticker := time.NewTicker(healthRefreshPeriod)
	defer ticker.Stop()

	update := func() {
		for _, c := range comps {
			p.monitor.Update(c.Meta().Name, health.FromComponentHealth(c.Meta().Name, c.Health()))
		}
		if p.nats.IsHealthy() {
			p.monitor.UpdateHealthy("nats", "connected")
		} else {
			p.monitor.UpdateUnhealthy("nats", "connection down")
		}
		for name, es := range p.epochs {
			if es.Connected() {
				p.monitor.UpdateHealthy("epochs-"+name, "extracting")
			} else {
				p.monitor.UpdateUnhealthy("epochs-"+name, "disconnected")
			}
		}
	}

	update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
