// Package epochs turns a continuous signal stream into a rolling buffer of
// event-locked epochs.
//
// An EpochsStream watches trigger events on stim channels of its source
// stream, on a separate regularly sampled trigger stream, or on an
// irregular event stream where every sample is an event. For each accepted
// event it slices the window [TMin, TMax) out of the source, optionally
// detrends, baseline-corrects and amplitude-screens it, and stores the
// result in a fixed-capacity ring of epochs overwriting oldest first.
//
// Acquisition is an explicit step: call Acquire manually, or let Connect
// start a background worker stepping at a fixed cadence. A timestamp
// watermark guarantees each event is extracted at most once even though
// consecutive steps observe overlapping windows.
package epochs
