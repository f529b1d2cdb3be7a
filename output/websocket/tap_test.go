package wsoutput

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurostream/neurostream/epochs"
	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/stream"
)

func testSource(t *testing.T) *epochs.EpochsStream {
	t.Helper()

	info := &stream.Info{
		Name:  "eeg-main",
		SFreq: 100,
		Channels: []stream.Channel{
			{Name: "Fz", Type: stream.ChannelEEG},
			{Name: "TRG", Type: stream.ChannelStim},
		},
	}
	src, err := stream.NewRingStream(info, 2.0)
	require.NoError(t, err)
	require.NoError(t, src.Connect())

	es, err := epochs.New(src, nil, epochs.Settings{
		BufSize:       2,
		EventID:       map[string]int{"stim": 1},
		EventChannels: []string{"TRG"},
		TMin:          0,
		TMax:          0.1,
		Picks:         []string{"Fz"},
	})
	require.NoError(t, err)
	require.NoError(t, es.Connect(0))
	t.Cleanup(func() { _ = es.Disconnect() })
	return es
}

func dial(t *testing.T, tap *Tap) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(tap.handleWebSocket))
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		_ = conn.Close()
		server.Close()
	}
}

func TestNewTapValidation(t *testing.T) {
	source := testSource(t)

	_, err := NewTap(Deps{Addr: ":0"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewTap(Deps{Source: source})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestTapSendsInfoOnConnect(t *testing.T) {
	tap, err := NewTap(Deps{Addr: ":0", Source: testSource(t), StreamName: "eeg-main"})
	require.NoError(t, err)

	conn, cleanup := dial(t, tap)
	defer cleanup()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "info", env.Type)
	assert.Equal(t, "eeg-main", env.Stream)

	var payload InfoPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.NotNil(t, payload.Info)
	assert.Equal(t, []string{"Fz"}, payload.Info.ChannelNames())
}

func TestTapBroadcastsEpochs(t *testing.T) {
	tap, err := NewTap(Deps{Addr: ":0", Source: testSource(t), StreamName: "eeg-main"})
	require.NoError(t, err)

	conn, cleanup := dial(t, tap)
	defer cleanup()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage() // info frame
	require.NoError(t, err)

	epochsData := [][][]float64{
		{{1, 2, 3}},
		{{4, 5, 6}},
	}
	require.Eventually(t, func() bool {
		return tap.hasClients()
	}, time.Second, 5*time.Millisecond)
	tap.broadcastEpochs(1, epochsData)

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	require.Equal(t, "epochs", env.Type)

	var payload EpochsPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 1, payload.NNew)
	assert.Equal(t, epochsData, payload.Epochs)
}

func TestTapDropsDisconnectedClient(t *testing.T) {
	tap, err := NewTap(Deps{Addr: ":0", Source: testSource(t), StreamName: "eeg-main"})
	require.NoError(t, err)

	conn, cleanup := dial(t, tap)
	require.Eventually(t, func() bool {
		return tap.hasClients()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return !tap.hasClients()
	}, time.Second, 5*time.Millisecond)
	cleanup()
}
