package epochs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constEpoch builds a (samples, channels) epoch where channel c holds the
// value base+c throughout.
func constEpoch(nSamples, nChannels int, base float64) [][]float64 {
	epoch := make([][]float64, nSamples)
	for s := range epoch {
		epoch[s] = make([]float64, nChannels)
		for c := range epoch[s] {
			epoch[s][c] = base + float64(c)
		}
	}
	return epoch
}

func TestEpochRingZeroFilled(t *testing.T) {
	r := newEpochRing(3, 4, 2)

	snap := r.snapshot([]int{0, 1})
	require.Len(t, snap, 3)
	for _, epoch := range snap {
		require.Len(t, epoch, 2)
		for _, row := range epoch {
			assert.Equal(t, []float64{0, 0, 0, 0}, row)
		}
	}
}

func TestEpochRingOverwritesOldest(t *testing.T) {
	r := newEpochRing(3, 2, 1)
	for k := 1; k <= 4; k++ {
		r.push(constEpoch(2, 1, float64(k)*10))
	}

	snap := r.snapshot([]int{0})
	require.Len(t, snap, 3)
	assert.Equal(t, 20.0, snap[0][0][0])
	assert.Equal(t, 30.0, snap[1][0][0])
	assert.Equal(t, 40.0, snap[2][0][0])
}

func TestEpochRingSnapshotOrientationAndPicks(t *testing.T) {
	r := newEpochRing(2, 3, 4)
	r.push(constEpoch(3, 4, 100))

	snap := r.snapshot([]int{2, 0})
	require.Len(t, snap, 2)

	// (epoch, channel, sample) with channels in pick order 2, 0.
	newest := snap[1]
	require.Len(t, newest, 2)
	require.Len(t, newest[0], 3)
	assert.Equal(t, 102.0, newest[0][0])
	assert.Equal(t, 100.0, newest[1][0])
}

func TestEpochRingSnapshotIsACopy(t *testing.T) {
	r := newEpochRing(1, 2, 1)
	r.push(constEpoch(2, 1, 5))

	snap := r.snapshot([]int{0})
	snap[0][0][0] = -1

	again := r.snapshot([]int{0})
	assert.Equal(t, 5.0, again[0][0][0])
}

func TestEpochRingPushBatchOrder(t *testing.T) {
	r := newEpochRing(3, 1, 1)
	r.pushBatch([][][]float64{
		{{1}},
		{{2}},
	})
	r.pushBatch([][][]float64{
		{{3}},
		{{4}},
	})

	snap := r.snapshot([]int{0})
	assert.Equal(t, 2.0, snap[0][0][0])
	assert.Equal(t, 3.0, snap[1][0][0])
	assert.Equal(t, 4.0, snap[2][0][0])
}
