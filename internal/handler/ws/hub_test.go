package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ProTrdx/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsJobEvents(t *testing.T) {
	hub := NewHub(nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.PublishJobEvent(context.Background(), models.JobEvent{
		Type:   models.EventJobFinished,
		JobID:  "job-1",
		Status: models.JobSuccess,
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.JobEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventJobFinished, ev.Type)
	assert.Equal(t, "job-1", ev.JobID)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	c := &client{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	ev := models.JobEvent{Type: models.EventJobStarted}
	require.NoError(t, hub.PublishJobEvent(context.Background(), ev))
	require.NoError(t, hub.PublishJobEvent(context.Background(), ev))
	assert.Zero(t, hub.Clients())
}
