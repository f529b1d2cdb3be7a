// Package player replays a recorded EDF(+) file into the live transport at
// its recorded cadence, so the rest of the pipeline cannot tell a replay
// from a live acquisition.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/neurostream/neurostream/component"
	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/metric"
	"github.com/neurostream/neurostream/natsclient"
	"github.com/neurostream/neurostream/stream"
)

// Config describes what to replay and where to publish it
type Config struct {
	File       string `json:"file"        yaml:"file"`
	StreamName string `json:"stream_name" yaml:"stream_name"`
	Subject    string `json:"subject"     yaml:"subject"`
	ChunkSize  int    `json:"chunk_size"  yaml:"chunk_size"`
	Loop       bool   `json:"loop"        yaml:"loop"`
}

// Validate implements the config contract
func (c *Config) Validate() error {
	if c.File == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("file must not be empty"), "PlayerConfig", "Validate", "check file")
	}
	if c.StreamName == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("stream name must not be empty"), "PlayerConfig", "Validate", "check stream name")
	}
	if c.ChunkSize < 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("chunk size must not be negative, got %d", c.ChunkSize),
			"PlayerConfig", "Validate", "check chunk size")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Subject == "" {
		out.Subject = "neurostream.data." + out.StreamName
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = 32
	}
	return out
}

// Metrics holds the player's Prometheus instruments
type Metrics struct {
	chunksPublished prometheus.Counter
	samplesPlayed   prometheus.Counter
	loops           prometheus.Counter
	publishErrors   prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, name, subject string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		chunksPublished: registry.CoreMetrics().ChunksPublished.WithLabelValues(subject),
		samplesPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "player",
			Name:      "samples_played_total",
			Help:      "Samples published from the recording",
		}),
		loops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "player",
			Name:      "loops_total",
			Help:      "Times playback wrapped to the start of the recording",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "player",
			Name:      "publish_errors_total",
			Help:      "Chunks that failed to publish",
		}),
	}

	registry.RegisterCounter(name, "samples_played", m.samplesPlayed)
	registry.RegisterCounter(name, "loops", m.loops)
	registry.RegisterCounter(name, "publish_errors", m.publishErrors)
	return m
}

// Deps holds the runtime dependencies of a Player
type Deps struct {
	Name            string
	Config          Config
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Player replays an EDF file as live chunks on the transport
type Player struct {
	name    string
	cfg     Config
	nats    *natsclient.Client
	logger  *slog.Logger
	metrics *Metrics

	file    *os.File
	reader  *edf.Reader
	meta    *fileMeta
	info    *stream.Info
	signals []int // EDF signal indices included in the stream
	sfreq   float64

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time

	samplesPlayed atomic.Int64
	chunksSent    atomic.Int64
	errorCount    atomic.Int64
	lastError     atomic.Value // string
}

var _ component.Lifecycle = (*Player)(nil)

// NewPlayer opens the recording and derives the stream description from
// its header. Signals whose sampling rate differs from the first signal's
// are left out of the replayed stream; a multirate recording cannot map
// onto a single chunked transport subject.
func NewPlayer(deps Deps) (*Player, error) {
	if deps.NATSClient == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("nats client must not be nil"), "Player", "NewPlayer", "check deps")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config.withDefaults()

	name := deps.Name
	if name == "" {
		name = "player"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", name, "file", cfg.File)

	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Player", "NewPlayer", "open recording")
	}

	meta, err := readMeta(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Player", "NewPlayer", "read header")
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, errors.WrapConfiguration(err, "Player", "NewPlayer", "rewind recording")
	}
	reader, err := edf.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Player", "NewPlayer", "open recording")
	}

	sfreq := meta.sfreq(0)
	if sfreq <= 0 {
		_ = f.Close()
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: recording has no usable sampling rate", errors.ErrInvalidData),
			"Player", "NewPlayer", "check sampling rate")
	}

	var signals []int
	var channels []stream.Channel
	for i, label := range meta.labels {
		if meta.sfreq(i) != sfreq {
			logger.Warn("Skipping signal with mismatched sampling rate",
				"signal", label, "sfreq", meta.sfreq(i), "stream_sfreq", sfreq)
			continue
		}
		signals = append(signals, i)
		channels = append(channels, stream.Channel{
			Name: label,
			Type: channelTypeFor(label),
			Unit: meta.dimensions[i],
		})
	}

	info := &stream.Info{
		Name:     cfg.StreamName,
		SFreq:    sfreq,
		Channels: channels,
	}
	if err := info.Validate(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Player{
		name:    name,
		cfg:     cfg,
		nats:    deps.NATSClient,
		logger:  logger,
		metrics: newMetrics(deps.MetricsRegistry, name, cfg.Subject),
		file:    f,
		reader:  reader,
		meta:    meta,
		info:    info,
		signals: signals,
		sfreq:   sfreq,
	}, nil
}

// channelTypeFor maps an EDF signal label to a channel modality. EDF+
// labels conventionally start with the signal type ("EEG Fpz-Cz").
func channelTypeFor(label string) stream.ChannelType {
	upper := strings.ToUpper(label)
	switch {
	case strings.HasPrefix(upper, "EEG"):
		return stream.ChannelEEG
	case strings.HasPrefix(upper, "EOG"):
		return stream.ChannelEOG
	case strings.HasPrefix(upper, "ECG"), strings.HasPrefix(upper, "EKG"):
		return stream.ChannelECG
	case strings.HasPrefix(upper, "EMG"):
		return stream.ChannelEMG
	case strings.Contains(upper, "MARKER"), strings.Contains(upper, "TRIGGER"),
		strings.HasPrefix(upper, "STI"):
		return stream.ChannelStim
	default:
		return stream.ChannelMisc
	}
}

// Info returns the stream description derived from the recording header
func (p *Player) Info() *stream.Info {
	return p.info.Copy()
}

// Start begins paced playback
func (p *Player) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.WrapState(errors.ErrAlreadyStarted, "Player", "Start", "state check")
	}

	p.shutdown = make(chan struct{})
	p.done = make(chan struct{})
	p.running.Store(true)
	p.startTime = time.Now()

	go p.playLoop(ctx)

	p.logger.Info("Playback started",
		"stream", p.cfg.StreamName,
		"subject", p.cfg.Subject,
		"sfreq", p.sfreq,
		"channels", len(p.signals),
		"loop", p.cfg.Loop)
	return nil
}

// Stop halts playback and closes the recording
func (p *Player) Stop(timeout time.Duration) error {
	if !p.running.Load() {
		return errors.WrapState(errors.ErrAlreadyStopped, "Player", "Stop", "state check")
	}

	close(p.shutdown)
	select {
	case <-p.done:
	case <-time.After(timeout):
		p.logger.Warn("Playback stop timed out", "timeout", timeout)
	}

	p.running.Store(false)
	err := p.file.Close()
	p.logger.Info("Playback stopped", "samples_played", p.samplesPlayed.Load())
	return err
}

// Done is closed when playback finishes, either by exhausting a non-looping
// recording or by Stop.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// playLoop reads the recording chunk by chunk and publishes at recorded
// cadence. Timestamps keep increasing across loop wraps so downstream
// windows see one continuous recording.
func (p *Player) playLoop(ctx context.Context) {
	defer close(p.done)

	readers, err := p.signalReaders()
	if err != nil {
		p.recordError(err)
		p.logger.Error("Failed to open signal readers", "error", err)
		return
	}

	interval := time.Duration(float64(p.cfg.ChunkSize) / p.sfreq * float64(time.Second))
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	buf := make([][]float64, len(readers))
	for i := range buf {
		buf[i] = make([]float64, p.cfg.ChunkSize)
	}

	var total int64
	for {
		select {
		case <-p.shutdown:
			return
		default:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		n, err := readChunk(readers, buf)
		if n > 0 {
			p.publish(buf, n, total)
			total += int64(n)
		}
		if err != nil {
			if !p.cfg.Loop {
				p.logger.Info("Recording exhausted", "samples_played", total)
				return
			}
			readers, err = p.signalReaders()
			if err != nil {
				p.recordError(err)
				p.logger.Error("Failed to rewind recording", "error", err)
				return
			}
			if p.metrics != nil {
				p.metrics.loops.Inc()
			}
			p.logger.Debug("Looping recording", "samples_played", total)
		}
	}
}

func (p *Player) signalReaders() ([]*edf.SignalReader, error) {
	readers := make([]*edf.SignalReader, len(p.signals))
	for k, idx := range p.signals {
		r, err := p.reader.Signal(idx)
		if err != nil {
			return nil, errors.WrapAcquisition(err, "Player", "signalReaders", "open signal")
		}
		readers[k] = r
	}
	return readers, nil
}

// readChunk fills buf from every signal reader and returns the shortest
// count read. A non-nil error marks the end of the recording.
func readChunk(readers []*edf.SignalReader, buf [][]float64) (int, error) {
	n := len(buf[0])
	var readErr error
	for k, r := range readers {
		got, err := r.Read(buf[k])
		if err != nil {
			readErr = err
		}
		if got < n {
			n = got
		}
	}
	return n, readErr
}

func (p *Player) publish(buf [][]float64, n int, total int64) {
	samples := make([][]float64, len(buf))
	for k := range buf {
		samples[k] = buf[k][:n]
	}
	ts := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = float64(total+int64(i)+1) / p.sfreq
	}

	chunk := stream.Chunk{Stream: p.cfg.StreamName, Samples: samples, Timestamps: ts}
	payload, err := chunk.Marshal()
	if err != nil {
		p.recordError(err)
		return
	}
	if err := p.nats.Publish(p.cfg.Subject, payload); err != nil {
		p.recordError(err)
		if p.metrics != nil {
			p.metrics.publishErrors.Inc()
		}
		p.logger.Warn("Failed to publish chunk", "error", err)
		return
	}

	p.chunksSent.Add(1)
	p.samplesPlayed.Add(int64(n))
	if p.metrics != nil {
		p.metrics.chunksPublished.Inc()
		p.metrics.samplesPlayed.Add(float64(n))
	}
}

func (p *Player) recordError(err error) {
	p.errorCount.Add(1)
	p.lastError.Store(err.Error())
}

// Meta implements component.Component
func (p *Player) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.name,
		Type:        "player",
		Description: "EDF playback of " + p.cfg.File,
		Version:     "1.0.0",
	}
}

// Health implements component.Component
func (p *Player) Health() component.HealthStatus {
	status := component.HealthStatus{
		Healthy:    p.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(p.errorCount.Load()),
	}
	if lastErr, ok := p.lastError.Load().(string); ok {
		status.LastError = lastErr
	}
	if p.running.Load() {
		status.Uptime = time.Since(p.startTime)
	}
	return status
}
