package epochs

import (
	"fmt"
	"math"

	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/stream"
)

// Detrend selects the detrending applied to each epoch before baseline
// correction.
type Detrend string

// Supported detrend modes
const (
	DetrendNone     Detrend = ""
	DetrendConstant Detrend = "constant"
	DetrendLinear   Detrend = "linear"
)

// Window is a time interval in seconds relative to the event onset. A nil
// bound is open and clamps to the corresponding epoch edge.
type Window struct {
	Start *float64 `json:"start,omitempty" yaml:"start,omitempty"`
	End   *float64 `json:"end,omitempty" yaml:"end,omitempty"`
}

// Settings is the immutable configuration of an EpochsStream. It is
// validated once by New and never mutated afterwards.
type Settings struct {
	// BufSize is the number of epochs kept in the rolling buffer.
	BufSize int `json:"bufsize" yaml:"bufsize"`
	// EventID maps event names to positive trigger codes. Only events with
	// a configured code are epoched. Ignored when the event source is an
	// irregularly sampled stream.
	EventID map[string]int `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	// EventChannels are the channel(s) monitored for trigger events, in the
	// connected stream or in EventStream when provided.
	EventChannels []string `json:"event_channels" yaml:"event_channels"`
	// TMin and TMax bound the epoch in seconds relative to the onset.
	// TMax must be strictly greater than TMin.
	TMin float64 `json:"tmin" yaml:"tmin"`
	TMax float64 `json:"tmax" yaml:"tmax"`
	// Baseline is the amplitude-correction window. Nil disables baseline
	// correction.
	Baseline *Window `json:"baseline,omitempty" yaml:"baseline,omitempty"`
	// Picks selects the channels to epoch; empty picks every good channel.
	Picks []string `json:"picks,omitempty" yaml:"picks,omitempty"`
	// Reject holds peak-to-peak rejection thresholds per channel type;
	// Flat holds minimum peak-to-peak thresholds. Nil disables the check.
	Reject map[stream.ChannelType]float64 `json:"reject,omitempty" yaml:"reject,omitempty"`
	Flat   map[stream.ChannelType]float64 `json:"flat,omitempty" yaml:"flat,omitempty"`
	// RejectWindow restricts the rejection check to a sub-window of the
	// epoch. Nil checks the whole epoch.
	RejectWindow *Window `json:"reject_window,omitempty" yaml:"reject_window,omitempty"`
	// Detrend selects the detrending mode applied before baseline
	// correction.
	Detrend Detrend `json:"detrend,omitempty" yaml:"detrend,omitempty"`
	// MinEventDuration is the number of samples a new channel value must be
	// sustained to count as an onset. Defaults to 2.
	MinEventDuration int `json:"min_event_duration,omitempty" yaml:"min_event_duration,omitempty"`
	// ShortestEvent is the neighbor distance in samples under which
	// detected events are reported as suspicious. Defaults to 2.
	ShortestEvent int `json:"shortest_event,omitempty" yaml:"shortest_event,omitempty"`
}

// withDefaults returns a copy of the settings with defaults applied
func (s Settings) withDefaults() Settings {
	if s.MinEventDuration <= 0 {
		s.MinEventDuration = 2
	}
	if s.ShortestEvent <= 0 {
		s.ShortestEvent = 2
	}
	return s
}

// nSamplesPerEpoch derives the epoch length in samples
func (s Settings) nSamplesPerEpoch(sfreq float64) int {
	return int(math.Ceil((s.TMax - s.TMin) * sfreq))
}

// validate checks the settings against the source stream(s). src must be a
// connected, regularly sampled stream; events may be nil.
func (s Settings) validate(src stream.Stream, events stream.Stream) error {
	const comp = "EpochsStream"

	if s.BufSize <= 0 {
		return errors.WrapConfiguration(errors.ErrInvalidCapacity, comp, "New",
			fmt.Sprintf("check bufsize %d", s.BufSize))
	}
	if s.TMax <= s.TMin {
		return errors.WrapConfiguration(errors.ErrInvalidWindow, comp, "New",
			fmt.Sprintf("tmax %g must be greater than tmin %g", s.TMax, s.TMin))
	}
	if len(s.EventChannels) == 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("at least one event channel is required"), comp, "New", "check event channels")
	}

	if err := s.validateEventID(events); err != nil {
		return err
	}
	if err := s.validateEventChannels(src, events); err != nil {
		return err
	}
	if err := s.validateBaseline(); err != nil {
		return err
	}
	if err := s.validateRejection(src); err != nil {
		return err
	}

	switch s.Detrend {
	case DetrendNone, DetrendConstant, DetrendLinear:
	default:
		return errors.WrapConfiguration(
			fmt.Errorf("detrend must be %q, %q or empty, got %q", DetrendConstant, DetrendLinear, s.Detrend),
			comp, "New", "check detrend")
	}

	return nil
}

func (s Settings) validateEventID(events stream.Stream) error {
	const comp = "EpochsStream"

	irregular := events != nil && events.Info().Irregular()
	if irregular {
		// Every sample of an irregular event stream is an event; the
		// mapping is ignored entirely.
		return nil
	}
	if len(s.EventID) == 0 {
		return errors.WrapConfiguration(errors.ErrInvalidEventID, comp, "New",
			"event id mapping must not be empty")
	}
	for name, code := range s.EventID {
		if name == "" || code <= 0 {
			return errors.WrapConfiguration(errors.ErrInvalidEventID, comp, "New",
				fmt.Sprintf("event %q must map a non-empty name to a positive code, got %d", name, code))
		}
	}
	return nil
}

func (s Settings) validateEventChannels(src stream.Stream, events stream.Stream) error {
	const comp = "EpochsStream"

	target := src
	requireStim := true
	if events != nil {
		target = events
		// Irregular side streams carry one-hot codes on arbitrary channel
		// types; only regularly sampled event sources must expose stim
		// channels.
		requireStim = !events.Info().Irregular()
	}

	info := target.Info()
	for _, name := range s.EventChannels {
		idx := info.ChannelIndex(name)
		if idx < 0 {
			return errors.WrapConfiguration(errors.ErrUnknownChannel, comp, "New",
				fmt.Sprintf("event channel %q not found in stream %q", name, info.Name))
		}
		if info.IsBad(name) {
			return errors.WrapConfiguration(errors.ErrBadChannel, comp, "New",
				fmt.Sprintf("event channel %q is marked bad", name))
		}
		if requireStim && info.Channels[idx].Type != stream.ChannelStim {
			return errors.WrapConfiguration(errors.ErrWrongChannelType, comp, "New",
				fmt.Sprintf("event channel %q must be of type %q", name, stream.ChannelStim))
		}
	}
	return nil
}

func (s Settings) validateBaseline() error {
	const comp = "EpochsStream"

	if s.Baseline != nil {
		if s.Baseline.Start != nil && *s.Baseline.Start < s.TMin {
			return errors.WrapConfiguration(errors.ErrInvalidBaseline, comp, "New",
				fmt.Sprintf("baseline start %g before tmin %g", *s.Baseline.Start, s.TMin))
		}
		if s.Baseline.End != nil && s.TMax < *s.Baseline.End {
			return errors.WrapConfiguration(errors.ErrInvalidBaseline, comp, "New",
				fmt.Sprintf("baseline end %g after tmax %g", *s.Baseline.End, s.TMax))
		}
	}

	if s.RejectWindow != nil {
		start, end := s.RejectWindow.Start, s.RejectWindow.End
		if start != nil && *start < s.TMin {
			return errors.WrapConfiguration(errors.ErrInvalidWindow, comp, "New",
				fmt.Sprintf("rejection window start %g before tmin %g", *start, s.TMin))
		}
		if end != nil && s.TMax < *end {
			return errors.WrapConfiguration(errors.ErrInvalidWindow, comp, "New",
				fmt.Sprintf("rejection window end %g after tmax %g", *end, s.TMax))
		}
		if start != nil && end != nil && *end <= *start {
			return errors.WrapConfiguration(errors.ErrInvalidWindow, comp, "New",
				"rejection window end must be greater than its start")
		}
	}
	return nil
}

func (s Settings) validateRejection(src stream.Stream) error {
	const comp = "EpochsStream"

	types := make(map[stream.ChannelType]struct{})
	for _, ch := range src.Info().Channels {
		types[ch.Type] = struct{}{}
	}

	for label, m := range map[string]map[stream.ChannelType]float64{"reject": s.Reject, "flat": s.Flat} {
		for chType, threshold := range m {
			if _, ok := types[chType]; !ok {
				return errors.WrapConfiguration(
					fmt.Errorf("%s threshold for channel type %q not present in the stream", label, chType),
					comp, "New", "check rejection thresholds")
			}
			if threshold <= 0 {
				return errors.WrapConfiguration(
					fmt.Errorf("%s threshold for channel type %q must be positive, got %g", label, chType, threshold),
					comp, "New", "check rejection thresholds")
			}
		}
	}
	return nil
}
