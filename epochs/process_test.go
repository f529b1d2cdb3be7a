package epochs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurostream/neurostream/stream"
)

func fptr(v float64) *float64 { return &v }

func TestDetrendConstant(t *testing.T) {
	d := &detrendStage{linear: false}
	epoch := [][]float64{{1, 10}, {2, 10}, {3, 10}}

	require.True(t, d.Apply(epoch))
	assert.InDelta(t, -1, epoch[0][0], 1e-12)
	assert.InDelta(t, 0, epoch[1][0], 1e-12)
	assert.InDelta(t, 1, epoch[2][0], 1e-12)
	for s := range epoch {
		assert.InDelta(t, 0, epoch[s][1], 1e-12)
	}
}

func TestDetrendLinear(t *testing.T) {
	d := &detrendStage{linear: true}
	// Pure ramp 3+2s collapses to zero under a linear fit.
	epoch := [][]float64{{3}, {5}, {7}, {9}}

	require.True(t, d.Apply(epoch))
	for s := range epoch {
		assert.InDelta(t, 0, epoch[s][0], 1e-9)
	}
}

func TestBaselineSubtractsWindowMean(t *testing.T) {
	b := &baselineStage{start: 0, end: 2}
	epoch := [][]float64{{4}, {6}, {100}}

	require.True(t, b.Apply(epoch))
	assert.InDelta(t, -1, epoch[0][0], 1e-12)
	assert.InDelta(t, 1, epoch[1][0], 1e-12)
	assert.InDelta(t, 95, epoch[2][0], 1e-12)
}

func TestRejectStage(t *testing.T) {
	chTypes := []stream.ChannelType{stream.ChannelEEG, stream.ChannelMisc}

	tests := []struct {
		name   string
		reject map[stream.ChannelType]float64
		flat   map[stream.ChannelType]float64
		epoch  [][]float64
		keep   bool
	}{
		{
			name:   "under threshold is kept",
			reject: map[stream.ChannelType]float64{stream.ChannelEEG: 10},
			epoch:  [][]float64{{0, 0}, {5, 0}, {2, 0}},
			keep:   true,
		},
		{
			name:   "peak to peak above reject drops",
			reject: map[stream.ChannelType]float64{stream.ChannelEEG: 10},
			epoch:  [][]float64{{0, 0}, {11, 0}, {2, 0}},
			keep:   false,
		},
		{
			name:  "flat channel drops",
			flat:  map[stream.ChannelType]float64{stream.ChannelEEG: 1},
			epoch: [][]float64{{5, 0}, {5, 0}, {5, 0}},
			keep:  false,
		},
		{
			name:   "unconfigured type is ignored",
			reject: map[stream.ChannelType]float64{stream.ChannelEEG: 10},
			epoch:  [][]float64{{0, 0}, {0, 1000}, {0, 0}},
			keep:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &rejectStage{
				reject:  tt.reject,
				flat:    tt.flat,
				chTypes: chTypes,
				start:   0,
				end:     3,
			}
			assert.Equal(t, tt.keep, r.Apply(tt.epoch))
		})
	}
}

func TestRejectWindowRestrictsCheck(t *testing.T) {
	// The spike at sample 0 sits outside the rejection window.
	r := &rejectStage{
		reject:  map[stream.ChannelType]float64{stream.ChannelEEG: 10},
		chTypes: []stream.ChannelType{stream.ChannelEEG},
		start:   1,
		end:     3,
	}
	epoch := [][]float64{{100}, {1}, {2}}
	assert.True(t, r.Apply(epoch))
}

func TestWindowToSamples(t *testing.T) {
	tests := []struct {
		name       string
		w          *Window
		start, end int
	}{
		{"open both sides", &Window{}, 0, 70},
		{"baseline pre-stimulus", &Window{Start: fptr(-0.2), End: fptr(0.0)}, 0, 20},
		{"inner window", &Window{Start: fptr(0.1), End: fptr(0.3)}, 30, 50},
		{"clamped to the epoch", &Window{Start: fptr(-1.0), End: fptr(9.0)}, 0, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := windowToSamples(tt.w, -0.2, 0.5, 100)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestBuildStagesOrder(t *testing.T) {
	info := &stream.Info{
		Name:  "test",
		SFreq: 100,
		Channels: []stream.Channel{
			{Name: "Fz", Type: stream.ChannelEEG},
		},
	}
	s := Settings{
		TMin:     -0.2,
		TMax:     0.5,
		Baseline: &Window{End: fptr(0.0)},
		Detrend:  DetrendLinear,
		Reject:   map[stream.ChannelType]float64{stream.ChannelEEG: 100e-6},
	}

	stages := buildStages(s, info, 100)
	require.Len(t, stages, 3)
	assert.Equal(t, "detrend", stages[0].Name())
	assert.Equal(t, "baseline", stages[1].Name())
	assert.Equal(t, "reject", stages[2].Name())
}

func TestBuildStagesEmpty(t *testing.T) {
	info := &stream.Info{
		Name:     "test",
		SFreq:    100,
		Channels: []stream.Channel{{Name: "Fz", Type: stream.ChannelEEG}},
	}
	assert.Empty(t, buildStages(Settings{TMin: 0, TMax: 1}, info, 100))
}
