package epochs

import (
	"math"

	"github.com/neurostream/neurostream/stream"
)

// Stage is one step of the epoch post-processing chain. It receives a single
// epoch in (samples, channels) orientation, may mutate it in place, and
// reports whether the epoch should be kept. Stages run in order; the first
// stage dropping an epoch short-circuits the rest.
type Stage interface {
	Name() string
	Apply(epoch [][]float64) (keep bool)
}

// buildStages assembles the processing chain from the settings: detrend,
// then baseline correction, then peak-to-peak rejection. Settings that leave
// all three off produce an empty chain, i.e. identity processing.
func buildStages(s Settings, info *stream.Info, sfreq float64) []Stage {
	var stages []Stage

	if s.Detrend != DetrendNone {
		stages = append(stages, &detrendStage{linear: s.Detrend == DetrendLinear})
	}
	if s.Baseline != nil {
		start, end := windowToSamples(s.Baseline, s.TMin, s.TMax, sfreq)
		stages = append(stages, &baselineStage{start: start, end: end})
	}
	if len(s.Reject) > 0 || len(s.Flat) > 0 {
		start, end := 0, s.nSamplesPerEpoch(sfreq)
		if s.RejectWindow != nil {
			start, end = windowToSamples(s.RejectWindow, s.TMin, s.TMax, sfreq)
		}
		types := make([]stream.ChannelType, info.NChannels())
		for k, ch := range info.Channels {
			types[k] = ch.Type
		}
		stages = append(stages, &rejectStage{
			reject:  s.Reject,
			flat:    s.Flat,
			chTypes: types,
			start:   start,
			end:     end,
		})
	}

	return stages
}

// windowToSamples converts a relative time window to sample offsets within
// the epoch, clamping open bounds to the epoch edges.
func windowToSamples(w *Window, tmin, tmax, sfreq float64) (int, int) {
	nSamples := int(math.Ceil((tmax - tmin) * sfreq))
	start := 0
	end := nSamples
	if w.Start != nil {
		start = int(math.Round((*w.Start - tmin) * sfreq))
	}
	if w.End != nil {
		end = int(math.Round((*w.End - tmin) * sfreq))
	}
	if start < 0 {
		start = 0
	}
	if end > nSamples {
		end = nSamples
	}
	if end < start {
		end = start
	}
	return start, end
}

// detrendStage removes the per-channel mean (constant) or least-squares
// linear trend over the sample index (linear).
type detrendStage struct {
	linear bool
}

func (d *detrendStage) Name() string { return "detrend" }

func (d *detrendStage) Apply(epoch [][]float64) bool {
	n := len(epoch)
	if n == 0 {
		return true
	}
	nch := len(epoch[0])

	for c := 0; c < nch; c++ {
		if !d.linear {
			mean := 0.0
			for s := 0; s < n; s++ {
				mean += epoch[s][c]
			}
			mean /= float64(n)
			for s := 0; s < n; s++ {
				epoch[s][c] -= mean
			}
			continue
		}

		// Least-squares fit of y = a*x + b over x = 0..n-1.
		var sumX, sumY, sumXY, sumXX float64
		for s := 0; s < n; s++ {
			x, y := float64(s), epoch[s][c]
			sumX += x
			sumY += y
			sumXY += x * y
			sumXX += x * x
		}
		fn := float64(n)
		denom := fn*sumXX - sumX*sumX
		if denom == 0 {
			continue
		}
		a := (fn*sumXY - sumX*sumY) / denom
		b := (sumY - a*sumX) / fn
		for s := 0; s < n; s++ {
			epoch[s][c] -= a*float64(s) + b
		}
	}
	return true
}

// baselineStage subtracts the per-channel mean of the baseline window
type baselineStage struct {
	start, end int
}

func (b *baselineStage) Name() string { return "baseline" }

func (b *baselineStage) Apply(epoch [][]float64) bool {
	if b.end <= b.start || len(epoch) == 0 {
		return true
	}
	nch := len(epoch[0])

	for c := 0; c < nch; c++ {
		mean := 0.0
		for s := b.start; s < b.end; s++ {
			mean += epoch[s][c]
		}
		mean /= float64(b.end - b.start)
		for s := range epoch {
			epoch[s][c] -= mean
		}
	}
	return true
}

// rejectStage drops epochs whose peak-to-peak amplitude exceeds the reject
// threshold or stays under the flat threshold for any channel of a
// configured type, within the rejection window.
type rejectStage struct {
	reject  map[stream.ChannelType]float64
	flat    map[stream.ChannelType]float64
	chTypes []stream.ChannelType
	start   int
	end     int
}

func (r *rejectStage) Name() string { return "reject" }

func (r *rejectStage) Apply(epoch [][]float64) bool {
	if r.end <= r.start || len(epoch) == 0 {
		return true
	}

	for c, chType := range r.chTypes {
		rejectThr, hasReject := r.reject[chType]
		flatThr, hasFlat := r.flat[chType]
		if !hasReject && !hasFlat {
			continue
		}

		lo := math.Inf(1)
		hi := math.Inf(-1)
		for s := r.start; s < r.end; s++ {
			v := epoch[s][c]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		ptp := hi - lo

		if hasReject && ptp > rejectThr {
			return false
		}
		if hasFlat && ptp < flatThr {
			return false
		}
	}
	return true
}
