// Package wsoutput exposes extracted epochs to visualization clients over
// WebSocket. The tap polls its EpochsStream and pushes a snapshot whenever
// new epochs arrived; delivery is at most once and slow clients lose
// messages rather than stalling the pipeline.
package wsoutput

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/neurostream/neurostream/component"
	"github.com/neurostream/neurostream/epochs"
	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/metric"
	"github.com/neurostream/neurostream/stream"
)

// Envelope is the wire frame sent to viewer clients
type Envelope struct {
	Type      string          `json:"type"` // "info" or "epochs"
	Stream    string          `json:"stream"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// InfoPayload is sent once when a client connects
type InfoPayload struct {
	Info *stream.Info `json:"info"`
}

// EpochsPayload carries a buffer snapshot, (epoch, channel, sample)
type EpochsPayload struct {
	NNew   int           `json:"n_new"`
	Epochs [][][]float64 `json:"epochs"`
}

// Metrics holds the tap's Prometheus instruments
type Metrics struct {
	clientsConnected prometheus.Gauge
	messagesSent     prometheus.Counter
	messagesDropped  prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, name string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neurostream",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Viewer clients currently connected",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Messages delivered to viewer clients",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neurostream",
			Subsystem: "websocket",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped because a client could not keep up",
		}),
	}

	registry.RegisterGauge(name, "clients_connected", m.clientsConnected)
	registry.RegisterCounter(name, "messages_sent", m.messagesSent)
	registry.RegisterCounter(name, "messages_dropped", m.messagesDropped)
	return m
}

const (
	defaultPath     = "/ws"
	clientQueueSize = 16
	writeTimeout    = 10 * time.Second
)

// Deps holds the runtime dependencies of a Tap
type Deps struct {
	Name            string
	Addr            string
	Path            string
	Source          *epochs.EpochsStream
	StreamName      string
	PollInterval    time.Duration
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

type client struct {
	id        string
	conn      *websocket.Conn
	queue     chan []byte
	closeOnce sync.Once
}

// close releases the connection and wakes the write loop exactly once
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.queue)
		_ = c.conn.Close()
	})
}

// Tap serves epoch snapshots to WebSocket viewers
type Tap struct {
	name         string
	addr         string
	path         string
	source       *epochs.EpochsStream
	streamName   string
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	server  *http.Server

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time

	messagesSent atomic.Int64
	errorCount   atomic.Int64
	lastError    atomic.Value // string
}

var _ component.Lifecycle = (*Tap)(nil)

// NewTap builds a viewer tap over the given epochs source
func NewTap(deps Deps) (*Tap, error) {
	if deps.Source == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("epochs source must not be nil"), "Tap", "NewTap", "check deps")
	}
	if deps.Addr == "" {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("listen address must not be empty"), "Tap", "NewTap", "check deps")
	}

	name := deps.Name
	if name == "" {
		name = "websocket-tap"
	}
	path := deps.Path
	if path == "" {
		path = defaultPath
	}
	pollInterval := deps.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tap{
		name:         name,
		addr:         deps.Addr,
		path:         path,
		source:       deps.Source,
		streamName:   deps.StreamName,
		pollInterval: pollInterval,
		logger:       logger.With("component", name, "addr", deps.Addr),
		metrics:      newMetrics(deps.MetricsRegistry, name),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Viewers are trusted local tools; origin checks are left to
			// the deployment's reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}, nil
}

// Start begins serving viewers and polling the epochs source
func (t *Tap) Start(ctx context.Context) error {
	if t.running.Load() {
		return errors.WrapState(errors.ErrAlreadyStarted, "Tap", "Start", "state check")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.path, t.handleWebSocket)
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	t.shutdown = make(chan struct{})
	t.done = make(chan struct{})

	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.recordError(err)
			t.logger.Error("WebSocket server failed", "error", err)
		}
	}()
	go t.pollLoop(ctx)

	t.running.Store(true)
	t.startTime = time.Now()
	t.logger.Info("WebSocket tap started", "path", t.path)
	return nil
}

// Stop closes all clients and shuts the server down
func (t *Tap) Stop(timeout time.Duration) error {
	if !t.running.Load() {
		return errors.WrapState(errors.ErrAlreadyStopped, "Tap", "Stop", "state check")
	}

	close(t.shutdown)
	select {
	case <-t.done:
	case <-time.After(timeout):
		t.logger.Warn("Tap poll loop stop timed out", "timeout", timeout)
	}

	t.mu.Lock()
	for _, c := range t.clients {
		c.close()
	}
	t.clients = make(map[string]*client)
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := t.server.Shutdown(ctx)

	t.running.Store(false)
	t.logger.Info("WebSocket tap stopped")
	return err
}

func (t *Tap) pollLoop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.shutdown:
			return
		case <-ticker.C:
		}

		if !t.hasClients() {
			continue
		}
		n, err := t.source.NNewEpochs()
		if err != nil || n == 0 {
			continue
		}
		data, err := t.source.GetData(nil)
		if err != nil {
			t.recordError(err)
			continue
		}
		t.broadcastEpochs(n, data)
	}
}

func (t *Tap) hasClients() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients) > 0
}

func (t *Tap) broadcastEpochs(nNew int, data [][][]float64) {
	frame, err := t.encode("epochs", EpochsPayload{NNew: nNew, Epochs: data})
	if err != nil {
		t.recordError(err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		select {
		case c.queue <- frame:
		default:
			if t.metrics != nil {
				t.metrics.messagesDropped.Inc()
			}
			t.logger.Debug("Dropping frame for slow client", "client", c.id)
		}
	}
}

func (t *Tap) encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapAcquisition(err, "Tap", "encode", "marshal payload")
	}
	return json.Marshal(Envelope{
		Type:      msgType,
		Stream:    t.streamName,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
}

func (t *Tap) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.recordError(err)
		return
	}

	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		queue: make(chan []byte, clientQueueSize),
	}

	t.mu.Lock()
	t.clients[c.id] = c
	n := len(t.clients)
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.clientsConnected.Set(float64(n))
	}
	t.logger.Info("Viewer connected", "client", c.id, "remote", r.RemoteAddr)

	if info, err := t.source.Info(); err == nil {
		if frame, err := t.encode("info", InfoPayload{Info: info}); err == nil {
			select {
			case c.queue <- frame:
			default:
			}
		}
	}

	go t.writeLoop(c)
	go t.readLoop(c)
}

// writeLoop delivers queued frames until the queue closes or a write fails
func (t *Tap) writeLoop(c *client) {
	for frame := range c.queue {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			break
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.logger.Debug("Write to viewer failed", "client", c.id, "error", err)
			break
		}
		t.messagesSent.Add(1)
		if t.metrics != nil {
			t.metrics.messagesSent.Inc()
		}
	}
	t.dropClient(c)
}

// readLoop consumes control frames and detects client disconnects
func (t *Tap) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			t.dropClient(c)
			return
		}
	}
}

func (t *Tap) dropClient(c *client) {
	t.mu.Lock()
	_, present := t.clients[c.id]
	delete(t.clients, c.id)
	n := len(t.clients)
	// Closing under the lock keeps broadcast sends and queue closes from
	// interleaving.
	c.close()
	t.mu.Unlock()

	if !present {
		return
	}
	if t.metrics != nil {
		t.metrics.clientsConnected.Set(float64(n))
	}
	t.logger.Info("Viewer disconnected", "client", c.id)
}

func (t *Tap) recordError(err error) {
	t.errorCount.Add(1)
	t.lastError.Store(err.Error())
}

// Meta implements component.Component
func (t *Tap) Meta() component.Metadata {
	return component.Metadata{
		Name:        t.name,
		Type:        "output",
		Description: "WebSocket viewer tap on " + t.streamName,
		Version:     "1.0.0",
	}
}

// Health implements component.Component
func (t *Tap) Health() component.HealthStatus {
	status := component.HealthStatus{
		Healthy:    t.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(t.errorCount.Load()),
	}
	if lastErr, ok := t.lastError.Load().(string); ok {
		status.LastError = lastErr
	}
	if t.running.Load() {
		status.Uptime = time.Since(t.startTime)
	}
	return status
}
