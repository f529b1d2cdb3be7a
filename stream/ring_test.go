package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurostream/neurostream/errors"
)

// pushRamp pushes n samples with values base+i on every channel and
// timestamps starting at t0 with 10 ms spacing.
func pushRamp(t *testing.T, s *RingStream, n int, base float64, t0 float64) {
	t.Helper()
	nch := s.Info().NChannels()
	samples := make([][]float64, nch)
	ts := make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = t0 + float64(i)*0.01
	}
	for k := 0; k < nch; k++ {
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			row[i] = base + float64(i)
		}
		samples[k] = row
	}
	require.NoError(t, s.PushChunk(samples, ts))
}

func newTestRing(t *testing.T) *RingStream {
	t.Helper()
	s, err := NewRingStream(testInfo(), 0.1) // 10 samples at 100 Hz
	require.NoError(t, err)
	require.NoError(t, s.Connect())
	return s
}

func TestNewRingStreamValidation(t *testing.T) {
	_, err := NewRingStream(nil, 1)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewRingStream(testInfo(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRingWindowAlwaysFullSize(t *testing.T) {
	s := newTestRing(t)
	assert.Equal(t, 10, s.Capacity())

	// Before any push the window is zero-filled.
	data, ts, err := s.GetData(nil)
	require.NoError(t, err)
	require.Len(t, data, 4)
	require.Len(t, data[0], 10)
	require.Len(t, ts, 10)
	assert.Equal(t, 0.0, data[0][0])

	// A partial fill still returns the full window.
	pushRamp(t, s, 3, 1, 100.0)
	data, ts, err = s.GetData(nil)
	require.NoError(t, err)
	require.Len(t, data[0], 10)
	assert.Equal(t, []float64{1, 2, 3}, data[0][7:])
	assert.Equal(t, 100.02, ts[9])
}

func TestRingEvictsOldest(t *testing.T) {
	s := newTestRing(t)

	pushRamp(t, s, 10, 0, 100.0)
	pushRamp(t, s, 4, 100, 100.10)

	data, ts, err := s.GetData(nil)
	require.NoError(t, err)
	// Window holds samples 4..9 of the first push then 0..3 of the second.
	assert.Equal(t, 4.0, data[0][0])
	assert.Equal(t, 9.0, data[0][5])
	assert.Equal(t, []float64{100, 101, 102, 103}, data[0][6:])
	assert.InDelta(t, 100.04, ts[0], 1e-9)
	assert.InDelta(t, 100.13, ts[9], 1e-9)
}

func TestRingOversizedChunkKeepsNewest(t *testing.T) {
	s := newTestRing(t)
	pushRamp(t, s, 25, 0, 100.0)

	data, _, err := s.GetData(nil)
	require.NoError(t, err)
	assert.Equal(t, 15.0, data[0][0])
	assert.Equal(t, 24.0, data[0][9])
}

func TestNNewSamplesResetOnGetData(t *testing.T) {
	s := newTestRing(t)
	pushRamp(t, s, 3, 0, 100.0)
	assert.Equal(t, 3, s.NNewSamples())

	pushRamp(t, s, 20, 0, 101.0)
	// Counter saturates at the window capacity.
	assert.Equal(t, 10, s.NNewSamples())

	_, _, err := s.GetData(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.NNewSamples())
}

func TestPushChunkShapeMismatch(t *testing.T) {
	s := newTestRing(t)

	err := s.PushChunk([][]float64{{1, 2}}, []float64{1, 2})
	require.Error(t, err)
	assert.True(t, errors.IsAcquisition(err))

	err = s.PushChunk([][]float64{{1}, {1}, {1}, {1, 2}}, []float64{1})
	require.Error(t, err)
	assert.True(t, errors.IsAcquisition(err))
}

func TestGetDataPicks(t *testing.T) {
	s := newTestRing(t)
	pushRamp(t, s, 10, 0, 100.0)

	data, _, err := s.GetData([]string{"TRIGGER"})
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, 0.0, data[0][0])
}

func TestStreamUseBeforeConnect(t *testing.T) {
	s, err := NewRingStream(testInfo(), 0.1)
	require.NoError(t, err)

	_, _, err = s.GetData(nil)
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	err = s.PushChunk([][]float64{{1}, {1}, {1}, {1}}, []float64{1})
	require.Error(t, err)
	assert.True(t, errors.IsState(err))
}

func TestEpochAttachmentBlocksStructuralChanges(t *testing.T) {
	s := newTestRing(t)
	require.NoError(t, s.AttachEpochs("consumer-1"))

	// Double attach with the same id is a state error.
	err := s.AttachEpochs("consumer-1")
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	err = s.MarkBad("Cz")
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	err = s.Disconnect()
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	s.DetachEpochs("consumer-1")
	assert.Empty(t, s.EpochConsumers())
	require.NoError(t, s.MarkBad("Cz"))
	require.NoError(t, s.Disconnect())
}

func TestIrregularStreamCapacityInSamples(t *testing.T) {
	info := testInfo()
	info.SFreq = 0
	s, err := NewRingStream(info, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, s.Capacity())
}
