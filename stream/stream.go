package stream

// Stream is the continuous-signal abstraction epoch consumers are built on:
// a rolling window of timestamped samples with channel metadata. A stream is
// regularly sampled when its Info reports a nonzero sampling rate.
//
// GetData returns the full rolling window (oldest sample first) for the
// selected channels and resets the new-sample counter as a side effect.
// Epoch consumers register through AttachEpochs so the stream refuses
// structural changes (channel set, window resize) while they are attached.
type Stream interface {
	Connected() bool
	Info() *Info
	// Capacity returns the rolling-window length in samples.
	Capacity() int
	GetData(picks []string) (data [][]float64, ts []float64, err error)
	NNewSamples() int
	AttachEpochs(id string) error
	DetachEpochs(id string)
	EpochConsumers() []string
}
