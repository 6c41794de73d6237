package wsadmin

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

	"github.com/ka9q/radiod/channel"
)

func TestModeNameCoversEveryDiscriminant(t *testing.T) {
	assert.Equal(t, "linear", modeName(channel.Linear))
	assert.Equal(t, "fm", modeName(channel.FM))
	assert.Equal(t, "wfm", modeName(channel.WFM))
	assert.Equal(t, "spectrum", modeName(channel.Spectrum))
	assert.Equal(t, "none", modeName(channel.DiscriminantNone))
}

func TestToStatusReflectsChannelFields(t *testing.T) {
	ch := &channel.Channel{
		SSRC:         7,
		Discriminant: channel.WFM,
		Tuning:       channel.Tuning{RFFrequency: 100300000},
		Filter:       channel.FilterGeometry{Low: -100000, High: 100000},
	}
	status := toStatus(ch)
	assert.Equal(t, uint32(7), status.SSRC)
	assert.Equal(t, "wfm", status.Mode)
	assert.Equal(t, 100300000.0, status.Frequency)
}

func TestBroadcastDeliversStatusToConnectedClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the server a moment to register the client
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast(&channel.Channel{SSRC: 99, Discriminant: channel.FM})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var status channelStatus
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, uint32(99), status.SSRC)
	assert.Equal(t, "fm", status.Mode)
}
