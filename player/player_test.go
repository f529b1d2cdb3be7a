package player

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/natsclient"
	"github.com/neurostream/neurostream/stream"
)

// writeRecording creates a two-signal EDF file: a ramp on an EEG channel
// and zeros on a marker channel, nRecords records of one second at 100 Hz.
func writeRecording(t *testing.T, nRecords int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recording.edf")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "Subject 01",
		RecordingID:        "Session 1",
		StartTime:          time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals: []edf.SignalHeader{
			{
				Label:             "EEG Fpz-Cz",
				PhysicalDimension: "uV",
				PhysicalMin:       -500,
				PhysicalMax:       500,
				DigitalMin:        -2048,
				DigitalMax:        2047,
				SamplesPerRecord:  100,
			},
			{
				Label:             "Marker",
				PhysicalDimension: "",
				PhysicalMin:       -10,
				PhysicalMax:       10,
				DigitalMin:        -2048,
				DigitalMax:        2047,
				SamplesPerRecord:  100,
			},
		},
	}

	w, err := edf.Create(f, hdr)
	require.NoError(t, err)
	for rec := 0; rec < nRecords; rec++ {
		eeg := make([]float64, 100)
		marker := make([]float64, 100)
		for i := range eeg {
			eeg[i] = float64(rec*100 + i)
		}
		require.NoError(t, w.WriteRecord([][]float64{eeg, marker}))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func testClient(t *testing.T) *natsclient.Client {
	t.Helper()
	c, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	return c
}

func TestReadMeta(t *testing.T) {
	path := writeRecording(t, 2)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	meta, err := readMeta(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"EEG Fpz-Cz", "Marker"}, meta.labels)
	assert.Equal(t, []int{100, 100}, meta.samplesPerRecord)
	assert.Equal(t, 2, meta.records)
	assert.Equal(t, time.Second, meta.recordDuration)
	assert.Equal(t, 100.0, meta.sfreq(0))
}

func TestChannelTypeFor(t *testing.T) {
	tests := []struct {
		label string
		want  stream.ChannelType
	}{
		{"EEG Fpz-Cz", stream.ChannelEEG},
		{"EOG horizontal", stream.ChannelEOG},
		{"EMG submental", stream.ChannelEMG},
		{"ECG II", stream.ChannelECG},
		{"EKG", stream.ChannelECG},
		{"Event marker", stream.ChannelStim},
		{"STI 014", stream.ChannelStim},
		{"Temp rectal", stream.ChannelMisc},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, channelTypeFor(tt.label))
		})
	}
}

func TestNewPlayerDerivesInfo(t *testing.T) {
	path := writeRecording(t, 2)

	p, err := NewPlayer(Deps{
		Config: Config{File: path, StreamName: "replay"},
		NATSClient: testClient(t),
	})
	require.NoError(t, err)
	defer p.file.Close() //nolint:errcheck

	info := p.Info()
	assert.Equal(t, "replay", info.Name)
	assert.Equal(t, 100.0, info.SFreq)
	require.Len(t, info.Channels, 2)
	assert.Equal(t, stream.ChannelEEG, info.Channels[0].Type)
	assert.Equal(t, "uV", info.Channels[0].Unit)
	assert.Equal(t, stream.ChannelStim, info.Channels[1].Type)
}

func TestNewPlayerValidation(t *testing.T) {
	client := testClient(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := NewPlayer(Deps{Config: Config{StreamName: "replay"}, NATSClient: client})
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
	})

	t.Run("file does not exist", func(t *testing.T) {
		_, err := NewPlayer(Deps{
			Config: Config{File: "/does/not/exist.edf", StreamName: "replay"},
			NATSClient: client,
		})
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
	})

	t.Run("nil nats client", func(t *testing.T) {
		_, err := NewPlayer(Deps{Config: Config{File: "x.edf", StreamName: "replay"}})
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
	})
}

func TestReadChunkConsumesRecording(t *testing.T) {
	path := writeRecording(t, 2)
	p, err := NewPlayer(Deps{
		Config: Config{File: path, StreamName: "replay", ChunkSize: 64},
		NATSClient: testClient(t),
	})
	require.NoError(t, err)
	defer p.file.Close() //nolint:errcheck

	readers, err := p.signalReaders()
	require.NoError(t, err)

	buf := [][]float64{make([]float64, 64), make([]float64, 64)}

	n, err := readChunk(readers, buf)
	require.NoError(t, err)
	require.Equal(t, 64, n)
	assert.InDelta(t, 0.0, buf[0][0], 0.5)
	assert.InDelta(t, 63.0, buf[0][63], 0.5)

	n, err = readChunk(readers, buf)
	require.NoError(t, err)
	require.Equal(t, 64, n)
	assert.InDelta(t, 64.0, buf[0][0], 0.5)

	// 72 samples remain of the 200 recorded.
	n, err = readChunk(readers, buf)
	assert.Equal(t, 72, n)
	assert.ErrorIs(t, err, io.EOF)
}
