package stream

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/metric"
)

// RingStream is a rolling window over a continuous sample source. Storage is
// a fixed arena per channel with a head index; a push overwrites the oldest
// samples and never reallocates. Slots are zero-filled until the first full
// wrap, so the window always has its nominal size.
//
// The window is fed by PushChunk (typically from an input component) and
// read by GetData. Both are safe for concurrent use.
type RingStream struct {
	info     *Info
	bufsize  float64 // seconds for regular streams, samples for irregular
	capacity int

	mu      sync.RWMutex
	data    [][]float64 // per channel, arena of capacity samples
	ts      []float64
	head    int // next write position
	nNew    int // samples pushed since last GetData
	conn    bool
	epochs  []string // attached epoch-consumer ids
	logger  *slog.Logger
	metrics *streamMetrics
}

type streamMetrics struct {
	samplesReceived prometheus.Counter
}

// RingOption configures a RingStream
type RingOption func(*RingStream)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) RingOption {
	return func(s *RingStream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires the stream to the platform metrics registry.
// A nil registry disables metrics.
func WithMetrics(registry *metric.MetricsRegistry) RingOption {
	return func(s *RingStream) {
		if registry == nil {
			return
		}
		s.metrics = &streamMetrics{
			samplesReceived: registry.CoreMetrics().SamplesReceived.WithLabelValues(s.info.Name),
		}
	}
}

// NewRingStream creates a rolling window over the described stream. For
// regularly sampled streams bufsize is a duration in seconds; for
// irregularly sampled streams it is a sample count.
func NewRingStream(info *Info, bufsize float64, opts ...RingOption) (*RingStream, error) {
	if info == nil {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("info must not be nil"), "RingStream", "NewRingStream", "check info")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if bufsize <= 0 {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("buffer size must be positive, got %g", bufsize),
			"RingStream", "NewRingStream", "check bufsize")
	}

	var capacity int
	if info.Irregular() {
		capacity = int(bufsize)
		if capacity <= 0 {
			return nil, errors.WrapConfiguration(
				fmt.Errorf("irregular stream buffer must hold at least one sample"),
				"RingStream", "NewRingStream", "check bufsize")
		}
	} else {
		capacity = int(math.Ceil(bufsize * info.SFreq))
	}

	s := &RingStream{
		info:     info.Copy(),
		bufsize:  bufsize,
		capacity: capacity,
		logger:   slog.Default().With("component", "stream", "stream", info.Name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Connect allocates the window and marks the stream ready to receive chunks
func (s *RingStream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn {
		s.logger.Warn("Stream already connected, skipping")
		return nil
	}

	s.data = make([][]float64, s.info.NChannels())
	for k := range s.data {
		s.data[k] = make([]float64, s.capacity)
	}
	s.ts = make([]float64, s.capacity)
	s.head = 0
	s.nNew = 0
	s.conn = true

	s.logger.Debug("Stream connected", "capacity", s.capacity, "channels", s.info.NChannels())
	return nil
}

// Disconnect releases the window. Fails while epoch consumers are attached.
func (s *RingStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn {
		s.logger.Warn("Stream already disconnected, skipping")
		return nil
	}
	if len(s.epochs) > 0 {
		return errors.WrapState(errors.ErrStreamEpoched,
			"RingStream", "Disconnect", "disconnect with attached epoch consumers")
	}

	s.data = nil
	s.ts = nil
	s.head = 0
	s.nNew = 0
	s.conn = false
	return nil
}

// Connected reports whether the stream window is live
func (s *RingStream) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Info returns the stream metadata
func (s *RingStream) Info() *Info {
	return s.info
}

// Capacity returns the window length in samples
func (s *RingStream) Capacity() int {
	return s.capacity
}

// BufSize returns the configured window size (seconds for regular streams,
// samples for irregular ones).
func (s *RingStream) BufSize() float64 {
	return s.bufsize
}

// PushChunk appends a block of samples to the window, evicting the oldest
func (s *RingStream) PushChunk(samples [][]float64, ts []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn {
		return errors.WrapState(errors.ErrNotConnected, "RingStream", "PushChunk", "push chunk")
	}
	if len(samples) != s.info.NChannels() {
		return errors.WrapAcquisition(
			fmt.Errorf("chunk has %d channels, stream has %d", len(samples), s.info.NChannels()),
			"RingStream", "PushChunk", "check shape")
	}
	n := len(ts)
	for k, row := range samples {
		if len(row) != n {
			return errors.WrapAcquisition(
				fmt.Errorf("channel %d has %d samples, want %d", k, len(row), n),
				"RingStream", "PushChunk", "check shape")
		}
	}

	// A chunk larger than the window keeps only its newest samples.
	offset := 0
	if n > s.capacity {
		offset = n - s.capacity
	}
	for i := offset; i < n; i++ {
		for k := range s.data {
			s.data[k][s.head] = samples[k][i]
		}
		s.ts[s.head] = ts[i]
		s.head = (s.head + 1) % s.capacity
	}

	s.nNew += n
	if s.nNew > s.capacity {
		s.nNew = s.capacity
	}
	if s.metrics != nil {
		s.metrics.samplesReceived.Add(float64(n))
	}
	return nil
}

// NNewSamples returns the number of samples pushed since the last GetData
func (s *RingStream) NNewSamples() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nNew
}

// GetData returns a copy of the full window, oldest sample first, for the
// selected channels, plus the matching timestamps. The new-sample counter is
// reset as a side effect.
func (s *RingStream) GetData(picks []string) ([][]float64, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn {
		return nil, nil, errors.WrapState(errors.ErrNotConnected, "RingStream", "GetData", "read window")
	}

	idx, err := s.info.ResolvePicks(picks)
	if err != nil {
		return nil, nil, err
	}

	data := make([][]float64, len(idx))
	for k, ch := range idx {
		row := make([]float64, s.capacity)
		// Linearize: oldest sample sits at head.
		copy(row, s.data[ch][s.head:])
		copy(row[s.capacity-s.head:], s.data[ch][:s.head])
		data[k] = row
	}
	ts := make([]float64, s.capacity)
	copy(ts, s.ts[s.head:])
	copy(ts[s.capacity-s.head:], s.ts[:s.head])

	s.nNew = 0
	return data, ts, nil
}

// AttachEpochs registers an epoch consumer. While any consumer is attached
// the stream refuses structural changes and disconnection.
func (s *RingStream) AttachEpochs(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.epochs {
		if existing == id {
			return errors.WrapState(
				fmt.Errorf("epoch consumer %s already attached", id),
				"RingStream", "AttachEpochs", "register consumer")
		}
	}
	s.epochs = append(s.epochs, id)
	return nil
}

// DetachEpochs deregisters an epoch consumer. Unknown ids are ignored.
func (s *RingStream) DetachEpochs(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, existing := range s.epochs {
		if existing == id {
			s.epochs = append(s.epochs[:k], s.epochs[k+1:]...)
			return
		}
	}
}

// EpochConsumers returns the ids of attached epoch consumers
func (s *RingStream) EpochConsumers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.epochs))
	copy(out, s.epochs)
	return out
}

// MarkBad adds a channel to the bad list. Refused while epoch consumers are
// attached, since epoch picks are resolved against the bad list.
func (s *RingStream) MarkBad(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.epochs) > 0 {
		return errors.WrapState(errors.ErrStreamEpoched, "RingStream", "MarkBad", "modify channels")
	}
	if s.info.ChannelIndex(name) < 0 {
		return errors.WrapConfiguration(errors.ErrUnknownChannel, "RingStream", "MarkBad", "mark "+name)
	}
	if !s.info.IsBad(name) {
		s.info.Bads = append(s.info.Bads, name)
	}
	return nil
}
