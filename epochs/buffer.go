package epochs

// epochRing is a fixed-capacity ring of epochs. Each slot holds one epoch
// in (samples, channels) orientation; slots are zero-filled until first
// written, so a snapshot always has the nominal shape. Writes overwrite the
// oldest slot via a head index, making a batch push O(batch) instead of the
// O(capacity) shift-and-append the buffer is logically equivalent to.
//
// The ring is not internally synchronized: the acquisition step is the only
// writer and EpochsStream serializes access around it.
type epochRing struct {
	capacity  int
	nSamples  int
	nChannels int
	slots     [][][]float64
	head      int // next write position, also the oldest slot
}

func newEpochRing(capacity, nSamples, nChannels int) *epochRing {
	slots := make([][][]float64, capacity)
	for k := range slots {
		epoch := make([][]float64, nSamples)
		for s := range epoch {
			epoch[s] = make([]float64, nChannels)
		}
		slots[k] = epoch
	}
	return &epochRing{
		capacity:  capacity,
		nSamples:  nSamples,
		nChannels: nChannels,
		slots:     slots,
	}
}

// push copies one epoch (samples, channels) into the oldest slot
func (r *epochRing) push(epoch [][]float64) {
	slot := r.slots[r.head]
	for s := range slot {
		copy(slot[s], epoch[s])
	}
	r.head = (r.head + 1) % r.capacity
}

// pushBatch inserts epochs in order, oldest first
func (r *epochRing) pushBatch(batch [][][]float64) {
	for _, epoch := range batch {
		r.push(epoch)
	}
}

// snapshot returns a copy of the buffer in (epoch, channel, sample)
// orientation, oldest epoch first, restricted to the given channel indices.
// Unwritten slots appear as zero-filled epochs at the front.
func (r *epochRing) snapshot(chIdx []int) [][][]float64 {
	out := make([][][]float64, r.capacity)
	for i := 0; i < r.capacity; i++ {
		src := r.slots[(r.head+i)%r.capacity]
		epoch := make([][]float64, len(chIdx))
		for c, ch := range chIdx {
			row := make([]float64, r.nSamples)
			for s := 0; s < r.nSamples; s++ {
				row[s] = src[s][ch]
			}
			epoch[c] = row
		}
		out[i] = epoch
	}
	return out
}
