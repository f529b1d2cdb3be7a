package epochs

import (
	"context"
	"os"
	"strconv"
	"time"
)

// RaiseStreamErrorsEnv switches acquisition failures from log-and-reset to
// surfacing the error. Background workers always log; manual Acquire
// returns the error when this is set to a true value.
const RaiseStreamErrorsEnv = "NEUROSTREAM_RAISE_STREAM_ERRORS"

func raiseStreamErrors() bool {
	v, err := strconv.ParseBool(os.Getenv(RaiseStreamErrorsEnv))
	return err == nil && v
}

// pollLoop is the single background worker started by Connect. Steps run
// at the given cadence, measured from the end of one step to the start of
// the next, until the context is cancelled or a step fails.
func (es *EpochsStream) pollLoop(ctx context.Context, interval time.Duration) {
	defer close(es.done)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		es.mu.Lock()
		if !es.connectedLocked() {
			es.mu.Unlock()
			return
		}
		err := es.runStepLocked()
		connected := es.connectedLocked()
		es.mu.Unlock()

		if err != nil || !connected {
			return
		}
		timer.Reset(interval)
	}
}

// runStepLocked executes one acquisition step and applies the failure
// policy: any error resets the instance to disconnected, and is either
// swallowed after logging or returned, depending on RaiseStreamErrorsEnv.
func (es *EpochsStream) runStepLocked() error {
	start := time.Now()
	err := es.stepLocked()
	if es.metrics != nil {
		es.metrics.stepDuration.Observe(time.Since(start).Seconds())
	}
	if err == nil {
		return nil
	}

	es.logger.Error("Acquisition step failed; resetting to disconnected", "error", err)
	if es.metrics != nil {
		es.metrics.acquisitionErrors.Inc()
	}
	if es.cancel != nil {
		es.cancel()
	}
	es.resetLocked()

	if raiseStreamErrors() {
		return err
	}
	return nil
}

// stepLocked fetches the source window, detects and prunes trigger onsets,
// extracts the matching epochs, runs them through the processing stages
// and pushes the survivors into the rolling buffer.
func (es *EpochsStream) stepLocked() error {
	if es.src.NNewSamples() == 0 {
		return nil
	}
	if es.events != nil && es.events.NNewSamples() == 0 {
		return nil
	}

	data, ts, err := es.src.GetData(es.fullNames)
	if err != nil {
		return err
	}

	onsets, err := es.source.detectAndPrune(data, ts, es.lastTS)
	if err != nil {
		return err
	}
	if len(onsets) == 0 {
		return nil
	}
	if es.metrics != nil {
		es.metrics.eventsDetected.Add(float64(len(onsets)))
	}

	kept := make([][][]float64, 0, len(onsets))
	rejected := 0
	for _, o := range onsets {
		epoch := es.extract(data, o.Index)
		if es.applyStages(epoch) {
			kept = append(kept, epoch)
		} else {
			rejected++
		}
	}

	es.buffer.pushBatch(kept)
	es.nNew += len(kept)

	// The watermark advances past every detected onset, rejected ones
	// included, so a dropped epoch is never re-extracted.
	last := ts[onsets[len(onsets)-1].Index]
	es.lastTS = &last

	if es.metrics != nil {
		es.metrics.epochsExtracted.Add(float64(len(kept)))
		es.metrics.epochsRejected.Add(float64(rejected))
	}
	es.logger.Debug("Acquisition step extracted epochs",
		"events", len(onsets), "kept", len(kept), "rejected", rejected)
	return nil
}

// extract copies one epoch out of the source window as (sample, channel),
// starting shift samples relative to the onset. Bounds were enforced by
// pruning.
func (es *EpochsStream) extract(data [][]float64, onset int) [][]float64 {
	start := onset + es.shift
	epoch := make([][]float64, es.epochLen)
	for s := 0; s < es.epochLen; s++ {
		row := make([]float64, len(es.picks))
		for c, ch := range es.picks {
			row[c] = data[ch][start+s]
		}
		epoch[s] = row
	}
	return epoch
}

func (es *EpochsStream) applyStages(epoch [][]float64) bool {
	for _, stage := range es.stages {
		if !stage.Apply(epoch) {
			es.logger.Debug("Epoch dropped by processing stage", "stage", stage.Name())
			return false
		}
	}
	return true
}
