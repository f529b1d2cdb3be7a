// Package neurostream is a toolkit for real-time EEG/BCI experimentation:
// acquiring sample streams over NATS, buffering them in rolling windows,
// slicing them into event-locked epochs, and replaying recorded files into
// the live transport.
//
// # Architecture
//
// The toolkit is organized as a small pipeline of independent packages:
//
//	player (EDF replay) --> NATS --> input/nats --> stream.RingStream
//	                                                      |
//	                                                epochs.EpochsStream
//	                                                      |
//	                                 get-data consumers / output/websocket tap
//
// Core packages:
//
//   - stream: continuous-signal abstraction: channel metadata, rolling
//     sample windows, epoch-consumer registration.
//   - epochs: the real-time epoch extraction engine: event detection,
//     pruning, epoch slicing, a fixed-capacity epoch ring buffer, and a
//     background acquisition scheduler.
//   - input/nats: feeds a RingStream from a NATS subject of sample chunks.
//   - output/websocket: pushes epoch snapshots to viewer clients.
//   - player: replays EDF(+) recordings onto NATS at recorded cadence.
//
// Infrastructure packages:
//
//   - errors: classified errors (configuration, state, acquisition).
//   - metric: Prometheus metrics registry shared by all components.
//   - health: component health statuses and aggregation.
//   - natsclient: managed NATS connection with reconnection handling.
//   - config: YAML service configuration.
//   - component: shared component metadata and lifecycle types.
//
// Epoch extraction never blocks sample acquisition: the scheduler runs at
// most one background acquisition step per EpochsStream, and all failures
// inside a step fail soft by default (the stream disconnects and logs rather
// than propagating), keeping long-running sessions resilient to transient
// glitches. Set NEUROSTREAM_RAISE_STREAM_ERRORS=true to propagate instead.
package neurostream
