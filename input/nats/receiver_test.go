package natsinput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/natsclient"
	"github.com/neurostream/neurostream/stream"
)

func testStream(t *testing.T) *stream.RingStream {
	t.Helper()
	info := &stream.Info{
		Name:  "eeg-main",
		SFreq: 100,
		Channels: []stream.Channel{
			{Name: "Fz", Type: stream.ChannelEEG},
			{Name: "Cz", Type: stream.ChannelEEG},
		},
	}
	s, err := stream.NewRingStream(info, 1.0)
	require.NoError(t, err)
	require.NoError(t, s.Connect())
	return s
}

func testClient(t *testing.T) *natsclient.Client {
	t.Helper()
	c, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	return c
}

func TestNewReceiverValidation(t *testing.T) {
	client := testClient(t)
	target := testStream(t)

	tests := []struct {
		name string
		deps Deps
	}{
		{"nil nats client", Deps{Subject: "neurostream.data.eeg", Stream: target}},
		{"nil stream", Deps{Subject: "neurostream.data.eeg", NATSClient: client}},
		{"empty subject", Deps{NATSClient: client, Stream: target}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReceiver(tt.deps)
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err))
		})
	}
}

func TestReceiverPushFeedsStream(t *testing.T) {
	target := testStream(t)
	r, err := NewReceiver(Deps{
		Subject:    "neurostream.data.eeg",
		NATSClient: testClient(t),
		Stream:     target,
	})
	require.NoError(t, err)

	chunk := stream.Chunk{
		Stream:     "eeg-main",
		Samples:    [][]float64{{1, 2, 3}, {4, 5, 6}},
		Timestamps: []float64{0.01, 0.02, 0.03},
	}
	payload, err := chunk.Marshal()
	require.NoError(t, err)

	r.push(payload)
	assert.Equal(t, 3, target.NNewSamples())

	data, _, err := target.GetData([]string{"Fz"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, data[0][len(data[0])-3:])
}

func TestReceiverPushRejectsGarbage(t *testing.T) {
	target := testStream(t)
	r, err := NewReceiver(Deps{
		Subject:    "neurostream.data.eeg",
		NATSClient: testClient(t),
		Stream:     target,
	})
	require.NoError(t, err)

	r.push([]byte("not json"))
	assert.Equal(t, 0, target.NNewSamples())
	assert.Equal(t, 1, r.Health().ErrorCount)
}

func TestReceiverMetaAndHealth(t *testing.T) {
	r, err := NewReceiver(Deps{
		Subject:    "neurostream.data.eeg",
		NATSClient: testClient(t),
		Stream:     testStream(t),
	})
	require.NoError(t, err)

	meta := r.Meta()
	assert.Equal(t, "nats-receiver", meta.Name)
	assert.Equal(t, "input", meta.Type)

	// Not started and not connected to NATS.
	assert.False(t, r.Health().Healthy)
}
