// Package errors provides standardized error handling patterns for
// neurostream components.
//
// # Error Classification
//
// The package implements a three-class error classification system shaped by
// a long-running acquisition pipeline:
//
//   - Configuration: construction-time validation failures (invalid epoch
//     window, malformed event-id mapping, unknown event channel). Fatal,
//     never retried.
//   - State: call-time misuse (operating on a disconnected stream, manual
//     acquisition while background polling runs). Fatal to the call.
//   - Acquisition: runtime failures inside an acquisition step. Recovered
//     by default (the affected stream resets to disconnected and logs)
//     and propagated only when NEUROSTREAM_RAISE_STREAM_ERRORS is set.
//
// The classification integrates with Go's standard error handling,
// supporting errors.Is(), errors.As() and wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if tmax <= tmin {
//	    return errors.ErrInvalidWindow
//	}
//
// Wrap errors with component context:
//
//	if err := stream.GetData(picks); err != nil {
//	    return errors.WrapAcquisition(err, "EpochsStream", "acquire", "read source data")
//	}
//
// Check classification to decide propagation:
//
//	if errors.IsConfiguration(err) {
//	    return err // never retry
//	}
package errors
