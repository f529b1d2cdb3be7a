package stream

import (
	"fmt"
	"slices"

	"github.com/neurostream/neurostream/errors"
)

// ChannelType identifies the modality of a channel
type ChannelType string

// Channel modalities understood by the toolkit
const (
	ChannelEEG  ChannelType = "eeg"
	ChannelEOG  ChannelType = "eog"
	ChannelECG  ChannelType = "ecg"
	ChannelEMG  ChannelType = "emg"
	ChannelStim ChannelType = "stim"
	ChannelMisc ChannelType = "misc"
)

// Channel describes a single channel of a stream
type Channel struct {
	Name string      `json:"name" yaml:"name"`
	Type ChannelType `json:"type" yaml:"type"`
	Unit string      `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Info holds the immutable metadata of a stream: channel set, bad-channel
// list and sampling rate. A sampling rate of 0 marks an irregularly sampled
// stream (e.g. an annotation/event side stream).
type Info struct {
	Name     string    `json:"name" yaml:"name"`
	SFreq    float64   `json:"sfreq" yaml:"sfreq"`
	Channels []Channel `json:"channels" yaml:"channels"`
	Bads     []string  `json:"bads,omitempty" yaml:"bads,omitempty"`
}

// Validate checks the info for internal consistency
func (i *Info) Validate() error {
	if i.Name == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("stream name must not be empty"), "Info", "Validate", "check name")
	}
	if i.SFreq < 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("sampling rate must not be negative, got %g", i.SFreq),
			"Info", "Validate", "check sfreq")
	}
	if len(i.Channels) == 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("stream must have at least one channel"), "Info", "Validate", "check channels")
	}
	seen := make(map[string]struct{}, len(i.Channels))
	for _, ch := range i.Channels {
		if ch.Name == "" {
			return errors.WrapConfiguration(
				fmt.Errorf("channel name must not be empty"), "Info", "Validate", "check channels")
		}
		if _, dup := seen[ch.Name]; dup {
			return errors.WrapConfiguration(
				fmt.Errorf("duplicate channel name %q", ch.Name), "Info", "Validate", "check channels")
		}
		seen[ch.Name] = struct{}{}
	}
	for _, bad := range i.Bads {
		if _, ok := seen[bad]; !ok {
			return errors.WrapConfiguration(
				fmt.Errorf("bad channel %q not part of the stream", bad),
				"Info", "Validate", "check bads")
		}
	}
	return nil
}

// NChannels returns the number of channels
func (i *Info) NChannels() int {
	return len(i.Channels)
}

// ChannelNames returns the channel names in order
func (i *Info) ChannelNames() []string {
	names := make([]string, len(i.Channels))
	for k, ch := range i.Channels {
		names[k] = ch.Name
	}
	return names
}

// ChannelIndex returns the index of a named channel, or -1 if absent
func (i *Info) ChannelIndex(name string) int {
	for k, ch := range i.Channels {
		if ch.Name == name {
			return k
		}
	}
	return -1
}

// ChannelTypeOf returns the modality of a named channel
func (i *Info) ChannelTypeOf(name string) (ChannelType, error) {
	idx := i.ChannelIndex(name)
	if idx < 0 {
		return "", errors.WrapConfiguration(errors.ErrUnknownChannel,
			"Info", "ChannelTypeOf", "lookup "+name)
	}
	return i.Channels[idx].Type, nil
}

// IsBad reports whether a channel is on the bad list
func (i *Info) IsBad(name string) bool {
	return slices.Contains(i.Bads, name)
}

// Irregular reports whether the stream is irregularly sampled
func (i *Info) Irregular() bool {
	return i.SFreq == 0
}

// ResolvePicks maps channel selections to indices. A nil or empty selection
// picks every channel not marked bad. Selections name channels directly; an
// unknown name is a configuration error. Bad channels are only returned when
// explicitly named.
func (i *Info) ResolvePicks(picks []string) ([]int, error) {
	if len(picks) == 0 {
		idx := make([]int, 0, len(i.Channels))
		for k, ch := range i.Channels {
			if !i.IsBad(ch.Name) {
				idx = append(idx, k)
			}
		}
		if len(idx) == 0 {
			return nil, errors.WrapConfiguration(
				fmt.Errorf("all channels are marked bad"), "Info", "ResolvePicks", "pick all")
		}
		return idx, nil
	}

	idx := make([]int, 0, len(picks))
	for _, name := range picks {
		k := i.ChannelIndex(name)
		if k < 0 {
			return nil, errors.WrapConfiguration(errors.ErrUnknownChannel,
				"Info", "ResolvePicks", "pick "+name)
		}
		idx = append(idx, k)
	}
	return idx, nil
}

// Select returns a copy of the info restricted to the given channel indices
func (i *Info) Select(indices []int) *Info {
	channels := make([]Channel, len(indices))
	for k, idx := range indices {
		channels[k] = i.Channels[idx]
	}
	var bads []string
	for _, ch := range channels {
		if i.IsBad(ch.Name) {
			bads = append(bads, ch.Name)
		}
	}
	return &Info{
		Name:     i.Name,
		SFreq:    i.SFreq,
		Channels: channels,
		Bads:     bads,
	}
}

// Copy returns a deep copy of the info
func (i *Info) Copy() *Info {
	return &Info{
		Name:     i.Name,
		SFreq:    i.SFreq,
		Channels: slices.Clone(i.Channels),
		Bads:     slices.Clone(i.Bads),
	}
}
