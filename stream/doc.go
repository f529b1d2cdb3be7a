// Package stream provides the continuous-signal abstraction of the toolkit:
// channel metadata (Info), the transport chunk format, and RingStream, a
// fixed-duration rolling window of timestamped samples.
//
// A RingStream is fed by a chunk source (usually input/nats) and consumed by
// anything that wants the latest window of signal, most importantly
// epochs.EpochsStream. Epoch consumers register themselves on the stream;
// while any are attached the stream refuses structural changes such as
// marking channels bad or disconnecting, because epoch extraction froze its
// channel selection against the current metadata.
//
// Storage is an arena per channel with a head index: a push overwrites the
// oldest samples in place, so steady-state acquisition allocates nothing.
package stream
