package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/pkg/statusbus"
)

func newTestHub(t *testing.T) (*Hub, *statusbus.Bus) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBStatusBus,
		Namespace: "orchestrator:statusbus",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	bus := statusbus.New(client, nil)
	return New(bus, Config{}, nil), bus
}

func TestHub_ServeRoom_ForwardsPublishedFrame(t *testing.T) {
	hub, bus := newTestHub(t)
	const room = "GR-20250101-KOJH-ABCD-A"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.ServeRoom(w, r, room))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // let the server-side Join establish

	require.NoError(t, bus.Publish(context.Background(), core.StatusFrame{
		Status:      core.TaskStatusSuccess,
		GrievanceID: room,
		TaskName:    "transcribe_audio_file_task",
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame core.StatusFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, room, frame.GrievanceID)
	assert.Equal(t, "transcribe_audio_file_task", frame.TaskName)
}

func TestHub_Shutdown_ClosesOpenConnections(t *testing.T) {
	hub, _ := newTestHub(t)
	const room = "GR-20250101-KOJH-ABCD-A"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.ServeRoom(w, r, room))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, hub.Shutdown(context.Background()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err) // connection was closed server-side
}
