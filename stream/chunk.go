package stream

import (
	"encoding/json"
	"fmt"

	"github.com/neurostream/neurostream/errors"
)

// Chunk is the wire unit of the sample transport: a block of contiguous
// samples for every channel of a stream plus one timestamp per sample.
// Samples are laid out (channels, time), timestamps in seconds and strictly
// increasing within a chunk.
type Chunk struct {
	Stream     string      `json:"stream"`
	Samples    [][]float64 `json:"samples"`
	Timestamps []float64   `json:"timestamps"`
}

// Validate checks the chunk shape
func (c *Chunk) Validate() error {
	if len(c.Samples) == 0 {
		return errors.WrapAcquisition(
			fmt.Errorf("chunk has no channels"), "Chunk", "Validate", "check samples")
	}
	n := len(c.Timestamps)
	if n == 0 {
		return errors.WrapAcquisition(
			fmt.Errorf("chunk has no timestamps"), "Chunk", "Validate", "check timestamps")
	}
	for k, row := range c.Samples {
		if len(row) != n {
			return errors.WrapAcquisition(
				fmt.Errorf("channel %d has %d samples, want %d", k, len(row), n),
				"Chunk", "Validate", "check shape")
		}
	}
	for k := 1; k < n; k++ {
		if c.Timestamps[k] <= c.Timestamps[k-1] {
			return errors.WrapAcquisition(
				fmt.Errorf("timestamps not strictly increasing at index %d", k),
				"Chunk", "Validate", "check timestamps")
		}
	}
	return nil
}

// Marshal encodes the chunk for the transport
func (c *Chunk) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.WrapAcquisition(err, "Chunk", "Marshal", "encode chunk")
	}
	return data, nil
}

// UnmarshalChunk decodes and validates a chunk from the transport
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.WrapAcquisition(err, "Chunk", "UnmarshalChunk", "decode chunk")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NSamples returns the number of samples in the chunk
func (c *Chunk) NSamples() int {
	return len(c.Timestamps)
}
