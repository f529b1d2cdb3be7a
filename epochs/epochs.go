package epochs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/metric"
	"github.com/neurostream/neurostream/stream"
)

// EpochsStream slices a connected stream into fixed-length, event-locked
// epochs and keeps the most recent ones in a rolling buffer.
//
// The zero value is not usable; construct with New. New registers the
// consumer on its source stream(s), which then refuse structural changes
// (channel set, bad markings, disconnect) until Disconnect releases them.
//
// Epochs are acquired either manually through Acquire or by a background
// worker started by Connect with a positive poll interval. All methods are
// safe for concurrent use.
type EpochsStream struct {
	src      stream.Stream
	events   stream.Stream
	settings Settings
	id       string
	name     string
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *epochsMetrics

	mu       sync.Mutex
	attached bool

	// Connection-scoped state. These fields are assigned together by
	// Connect and cleared together on Disconnect or acquisition failure,
	// so Connected never observes a half-initialized instance.
	buffer    *epochRing
	info      *stream.Info
	picks     []int
	fullNames []string
	eventIdx  []int
	allow     map[int]struct{}
	stages    []Stage
	source    eventSource
	epochLen  int
	shift     int
	lastTS    *float64
	nNew      int

	polling bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures an EpochsStream
type Option func(*EpochsStream)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(es *EpochsStream) {
		es.logger = logger
	}
}

// WithMetrics wires the consumer to the platform metrics registry.
// Metrics are labeled with the source stream name.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(es *EpochsStream) {
		es.registry = registry
	}
}

// New validates the settings against the source streams and registers the
// consumer on them. src must be connected and regularly sampled; events,
// when non-nil, must be connected and carries the trigger channels instead
// of src.
//
// The source window must hold at least one epoch. A window shorter than
// 1.2 epochs is accepted with a warning since late-arriving chunks can
// evict samples an undetected event still needs.
func New(src, events stream.Stream, settings Settings, opts ...Option) (*EpochsStream, error) {
	if src == nil {
		return nil, errors.WrapConfiguration(
			errors.ErrInvalidConfig, "EpochsStream", "New", "source stream is nil")
	}
	if !src.Connected() {
		return nil, errors.WrapState(
			errors.ErrNotConnected, "EpochsStream", "New", "source stream check")
	}
	if src.Info().Irregular() {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: epoched stream must be regularly sampled", errors.ErrInvalidConfig),
			"EpochsStream", "New", "source stream check")
	}
	if events != nil && !events.Connected() {
		return nil, errors.WrapState(
			errors.ErrNotConnected, "EpochsStream", "New", "event stream check")
	}

	settings = settings.withDefaults()
	if err := settings.validate(src, events); err != nil {
		return nil, err
	}

	sfreq := src.Info().SFreq
	epochLen := settings.nSamplesPerEpoch(sfreq)
	if src.Capacity() < epochLen {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: window of %d samples cannot hold a %d sample epoch",
				errors.ErrBufferTooShort, src.Capacity(), epochLen),
			"EpochsStream", "New", "buffer sizing")
	}

	es := &EpochsStream{
		src:      src,
		events:   events,
		settings: settings,
		id:       uuid.NewString(),
		name:     src.Info().Name,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(es)
	}
	es.logger = es.logger.With("component", "epochs", "stream", es.name)
	es.metrics = newEpochsMetrics(es.registry, es.name)

	if src.Capacity() < int(math.Ceil(1.2*float64(epochLen))) {
		es.logger.Warn("Source window barely holds one epoch; samples may be evicted before extraction",
			"window_samples", src.Capacity(), "epoch_samples", epochLen)
	}

	if err := es.attach(); err != nil {
		return nil, err
	}
	return es, nil
}

func (es *EpochsStream) attach() error {
	if err := es.src.AttachEpochs(es.id); err != nil {
		return errors.WrapState(err, "EpochsStream", "New", "source stream attach")
	}
	if es.events != nil {
		if err := es.events.AttachEpochs(es.id); err != nil {
			es.src.DetachEpochs(es.id)
			return errors.WrapState(err, "EpochsStream", "New", "event stream attach")
		}
	}
	es.attached = true
	return nil
}

// Connect initializes the epoch buffer and starts acquiring. A positive
// pollInterval starts a background worker stepping at that cadence; zero
// selects manual acquisition through Acquire. Connecting an already
// connected instance is a warning no-op.
func (es *EpochsStream) Connect(pollInterval time.Duration) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.connectedLocked() {
		es.logger.Warn("EpochsStream already connected")
		return nil
	}
	if pollInterval < 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("%w: poll interval must not be negative", errors.ErrInvalidConfig),
			"EpochsStream", "Connect", "poll interval check")
	}
	if !es.src.Connected() {
		return errors.WrapState(errors.ErrSourceDisconnected, "EpochsStream", "Connect", "source stream check")
	}
	if es.events != nil && !es.events.Connected() {
		return errors.WrapState(errors.ErrSourceDisconnected, "EpochsStream", "Connect", "event stream check")
	}
	if !es.attached {
		if err := es.attach(); err != nil {
			return err
		}
	}

	srcInfo := es.src.Info()
	picks, err := srcInfo.ResolvePicks(es.settings.Picks)
	if err != nil {
		return errors.WrapConfiguration(err, "EpochsStream", "Connect", "channel selection")
	}

	sfreq := srcInfo.SFreq
	epochLen := es.settings.nSamplesPerEpoch(sfreq)
	info := srcInfo.Select(picks)

	var eventIdx []int
	if es.events == nil {
		eventIdx = make([]int, len(es.settings.EventChannels))
		for k, name := range es.settings.EventChannels {
			eventIdx[k] = srcInfo.ChannelIndex(name)
		}
	}

	var allow map[int]struct{}
	if es.events == nil || !es.events.Info().Irregular() {
		allow = make(map[int]struct{}, len(es.settings.EventID))
		for _, code := range es.settings.EventID {
			allow[code] = struct{}{}
		}
	}

	es.buffer = newEpochRing(es.settings.BufSize, epochLen, len(picks))
	es.info = info
	es.picks = picks
	es.fullNames = srcInfo.ChannelNames()
	es.eventIdx = eventIdx
	es.allow = allow
	es.stages = buildStages(es.settings, info, sfreq)
	es.epochLen = epochLen
	es.shift = int(math.Round(es.settings.TMin * sfreq))
	es.lastTS = nil
	es.nNew = 0

	switch {
	case es.events == nil:
		es.source = &mainStimSource{es: es}
	case es.events.Info().Irregular():
		es.source = &irregularSource{es: es}
	default:
		es.source = &sideStimSource{es: es}
	}

	if pollInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		es.cancel = cancel
		es.done = make(chan struct{})
		es.polling = true
		go es.pollLoop(ctx, pollInterval)
	}

	es.logger.Info("EpochsStream connected",
		"poll_interval", pollInterval,
		"epoch_samples", epochLen,
		"channels", len(picks),
		"capacity", es.settings.BufSize)
	return nil
}

// Disconnect stops acquisition, releases the source streams and discards
// the epoch buffer. Disconnecting an already disconnected instance is a
// warning no-op beyond a defensive detach.
func (es *EpochsStream) Disconnect() error {
	es.mu.Lock()
	if !es.connectedLocked() {
		es.logger.Warn("EpochsStream already disconnected")
		es.detachLocked()
		es.mu.Unlock()
		return nil
	}
	cancel, done := es.cancel, es.done
	es.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	es.resetLocked()
	es.detachLocked()
	es.logger.Info("EpochsStream disconnected")
	return nil
}

// Connected reports whether the epoch buffer is live. It is true between a
// successful Connect and the matching Disconnect, and drops back to false
// when an acquisition failure resets the instance.
func (es *EpochsStream) Connected() bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.connectedLocked()
}

// Acquire runs a single acquisition step: fetch new samples, detect and
// prune events, extract, process and buffer the epochs. It is only valid
// in manual mode; with a background worker running it returns a state
// error.
//
// Acquisition failures reset the instance to disconnected. By default the
// error is logged and nil is returned; setting NEUROSTREAM_RAISE_STREAM_ERRORS
// to true surfaces it to the caller instead.
func (es *EpochsStream) Acquire() error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.connectedLocked() {
		return errors.WrapState(errors.ErrNotConnected, "EpochsStream", "Acquire", "state check")
	}
	if es.polling {
		return errors.WrapState(errors.ErrManualWhilePolling, "EpochsStream", "Acquire", "mode check")
	}
	return es.runStepLocked()
}

// GetData returns a copy of the epoch buffer as (epoch, channel, sample),
// oldest epoch first, restricted to picks (nil picks every buffered
// channel). Slots not yet filled are zero epochs at the front. Reading
// resets the new-epoch counter.
func (es *EpochsStream) GetData(picks []string) ([][][]float64, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.connectedLocked() {
		return nil, errors.WrapState(errors.ErrNotConnected, "EpochsStream", "GetData", "state check")
	}
	chIdx, err := es.info.ResolvePicks(picks)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "EpochsStream", "GetData", "channel selection")
	}
	es.nNew = 0
	return es.buffer.snapshot(chIdx), nil
}

// NNewEpochs returns the number of epochs buffered since the last GetData
func (es *EpochsStream) NNewEpochs() (int, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.connectedLocked() {
		return 0, errors.WrapState(errors.ErrNotConnected, "EpochsStream", "NNewEpochs", "state check")
	}
	return es.nNew, nil
}

// Info returns the channel metadata of the buffered epochs
func (es *EpochsStream) Info() (*stream.Info, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.connectedLocked() {
		return nil, errors.WrapState(errors.ErrNotConnected, "EpochsStream", "Info", "state check")
	}
	return es.info, nil
}

// ID returns the consumer identifier registered on the source streams
func (es *EpochsStream) ID() string {
	return es.id
}

func (es *EpochsStream) connectedLocked() bool {
	return es.buffer != nil && es.info != nil && es.picks != nil && es.source != nil
}

// resetLocked clears all connection-scoped state in one place so a reset
// instance is indistinguishable from a never-connected one.
func (es *EpochsStream) resetLocked() {
	es.buffer = nil
	es.info = nil
	es.picks = nil
	es.fullNames = nil
	es.eventIdx = nil
	es.allow = nil
	es.stages = nil
	es.source = nil
	es.epochLen = 0
	es.shift = 0
	es.lastTS = nil
	es.nNew = 0
	es.polling = false
	es.cancel = nil
	es.done = nil
}

func (es *EpochsStream) detachLocked() {
	if !es.attached {
		return
	}
	es.src.DetachEpochs(es.id)
	if es.events != nil {
		es.events.DetachEpochs(es.id)
	}
	es.attached = false
}
