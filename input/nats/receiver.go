// Package natsinput bridges the NATS transport into a local rolling window:
// it subscribes to a chunk subject and feeds every decoded chunk into a
// RingStream, making a remotely acquired signal consumable by epoch
// extraction.
package natsinput

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/neurostream/neurostream/component"
	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/metric"
	"github.com/neurostream/neurostream/natsclient"
	"github.com/neurostream/neurostream/stream"
)

// Metrics holds the receiver's Prometheus instruments
type Metrics struct {
	chunksReceived prometheus.Counter
	chunksDropped  prometheus.Counter
	decodeErrors   prometheus.Counter
	pushErrors     prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "receiver",
			Name:      "chunks_received_total",
			Help:      "Chunks received from the transport",
		}),
		chunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "receiver",
			Name:      "chunks_dropped_total",
			Help:      "Chunks dropped because the intake queue was full",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "receiver",
			Name:      "decode_errors_total",
			Help:      "Messages that failed chunk decoding",
		}),
		pushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "receiver",
			Name:      "push_errors_total",
			Help:      "Chunks the rolling window refused",
		}),
	}

	registry.RegisterCounter(name, "chunks_received", m.chunksReceived)
	registry.RegisterCounter(name, "chunks_dropped", m.chunksDropped)
	registry.RegisterCounter(name, "decode_errors", m.decodeErrors)
	registry.RegisterCounter(name, "push_errors", m.pushErrors)
	return m
}

// queueSize bounds the intake between the NATS callback and the push
// worker. Chunks arriving while it is full are dropped and counted, never
// blocking the transport callback.
const queueSize = 256

// Deps holds the runtime dependencies of a Receiver
type Deps struct {
	Name            string
	Subject         string
	NATSClient      *natsclient.Client
	Stream          *stream.RingStream
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Receiver subscribes to a chunk subject and feeds a RingStream
type Receiver struct {
	name    string
	subject string
	nats    *natsclient.Client
	stream  *stream.RingStream
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	sub      *nats.Subscription
	queue    chan []byte
	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool

	startTime time.Time

	chunksReceived atomic.Int64
	bytesReceived  atomic.Int64
	errorCount     atomic.Int64
	lastError      atomic.Value // string
	lastActivity   atomic.Value // time.Time
}

var _ component.Lifecycle = (*Receiver)(nil)

// NewReceiver builds a receiver for the given chunk subject
func NewReceiver(deps Deps) (*Receiver, error) {
	if deps.NATSClient == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("nats client must not be nil"), "Receiver", "NewReceiver", "check deps")
	}
	if deps.Stream == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("target stream must not be nil"), "Receiver", "NewReceiver", "check deps")
	}
	if deps.Subject == "" {
		return nil, errors.WrapConfiguration(
			errors.ErrInvalidConfig, "Receiver", "NewReceiver", "check subject")
	}

	name := deps.Name
	if name == "" {
		name = "nats-receiver"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Receiver{
		name:    name,
		subject: deps.Subject,
		nats:    deps.NATSClient,
		stream:  deps.Stream,
		logger:  logger.With("component", name, "subject", deps.Subject),
		metrics: newMetrics(deps.MetricsRegistry, name),
	}, nil
}

// Start subscribes to the transport and begins feeding the stream. The
// target stream is connected here if it is not already.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return errors.WrapState(errors.ErrAlreadyStarted, "Receiver", "Start", "state check")
	}

	if !r.stream.Connected() {
		if err := r.stream.Connect(); err != nil {
			return err
		}
	}

	r.queue = make(chan []byte, queueSize)
	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})

	sub, err := r.nats.Subscribe(r.subject, r.handleMessage)
	if err != nil {
		return err
	}
	r.sub = sub

	go r.pushLoop(ctx)

	r.running.Store(true)
	r.startTime = time.Now()
	r.logger.Info("Receiver started")
	return nil
}

// Stop unsubscribes and drains the intake queue
func (r *Receiver) Stop(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Load() {
		return errors.WrapState(errors.ErrAlreadyStopped, "Receiver", "Stop", "state check")
	}

	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("Unsubscribe failed", "error", err)
		}
		r.sub = nil
	}
	close(r.shutdown)

	select {
	case <-r.done:
	case <-time.After(timeout):
		r.logger.Warn("Receiver stop timed out", "timeout", timeout)
	}

	r.running.Store(false)
	r.logger.Info("Receiver stopped")
	return nil
}

func (r *Receiver) handleMessage(msg *nats.Msg) {
	r.chunksReceived.Add(1)
	r.bytesReceived.Add(int64(len(msg.Data)))
	r.lastActivity.Store(time.Now())
	if r.metrics != nil {
		r.metrics.chunksReceived.Inc()
	}

	select {
	case r.queue <- msg.Data:
	default:
		if r.metrics != nil {
			r.metrics.chunksDropped.Inc()
		}
		r.logger.Warn("Intake queue full, dropping chunk")
	}
}

func (r *Receiver) pushLoop(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case payload := <-r.queue:
					r.push(payload)
				default:
					return
				}
			}
		case payload := <-r.queue:
			r.push(payload)
		}
	}
}

func (r *Receiver) push(payload []byte) {
	chunk, err := stream.UnmarshalChunk(payload)
	if err != nil {
		r.recordError(err)
		if r.metrics != nil {
			r.metrics.decodeErrors.Inc()
		}
		r.logger.Warn("Failed to decode chunk", "error", err)
		return
	}

	if err := r.stream.PushChunk(chunk.Samples, chunk.Timestamps); err != nil {
		r.recordError(err)
		if r.metrics != nil {
			r.metrics.pushErrors.Inc()
		}
		r.logger.Warn("Stream refused chunk", "error", err)
	}
}

func (r *Receiver) recordError(err error) {
	r.errorCount.Add(1)
	r.lastError.Store(err.Error())
}

// Meta implements component.Component
func (r *Receiver) Meta() component.Metadata {
	return component.Metadata{
		Name:        r.name,
		Type:        "input",
		Description: "NATS chunk receiver feeding " + r.stream.Info().Name,
		Version:     "1.0.0",
	}
}

// Health implements component.Component
func (r *Receiver) Health() component.HealthStatus {
	status := component.HealthStatus{
		Healthy:    r.running.Load() && r.nats.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(r.errorCount.Load()),
	}
	if lastErr, ok := r.lastError.Load().(string); ok {
		status.LastError = lastErr
	}
	if r.running.Load() {
		status.Uptime = time.Since(r.startTime)
	}
	return status
}

// Flow reports transport throughput
func (r *Receiver) Flow() component.FlowMetrics {
	fm := component.FlowMetrics{
		MessagesReceived: r.chunksReceived.Load(),
		BytesReceived:    r.bytesReceived.Load(),
	}
	if last, ok := r.lastActivity.Load().(time.Time); ok {
		fm.LastActivity = last
	}
	if uptime := time.Since(r.startTime).Seconds(); r.running.Load() && uptime > 0 {
		fm.MessagesPerSecond = float64(fm.MessagesReceived) / uptime
	}
	return fm
}
