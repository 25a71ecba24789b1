package handlers

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
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/services/events"
)

func setupEventsServer(t *testing.T, writeRate string) (*events.Service, string) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)

	h := NewEventsHandler(bus, &common.WebSocketConfig{
		WriteRate:    writeRate,
		PingInterval: "30s",
	}, logger)

	server := httptest.NewServer(http.HandlerFunc(h.HandleEvents))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return bus, wsURL
}

func TestHandleEvents_RelaysTopicNotifications(t *testing.T) {
	bus, wsURL := setupEventsServer(t, "1ms")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?platform_id=p1&organization_id=o1", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Subscription lands asynchronously after the upgrade
	require.Eventually(t, func() bool {
		return bus.SubscriberCount("p1_o1") == 1
	}, time.Second, 10*time.Millisecond)

	bus.Publish(models.Notification{
		ID: "ntf_1", Title: "Report completed",
		PlatformID: "p1", OrganizationID: "o1",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)

	payload, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var n models.Notification
	require.NoError(t, json.Unmarshal(payload, &n))
	assert.Equal(t, "ntf_1", n.ID)
	assert.Equal(t, "Report completed", n.Title)
}

func TestHandleEvents_TopicIsolation(t *testing.T) {
	bus, wsURL := setupEventsServer(t, "1ms")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?platform_id=p1&organization_id=o1", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("p1_o1") == 1
	}, time.Second, 10*time.Millisecond)

	// A different tenant's event must not reach this connection
	bus.Publish(models.Notification{
		ID: "ntf_other", Title: "Other tenant",
		PlatformID: "p1", OrganizationID: "o2",
	})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg WSMessage
	err = conn.ReadJSON(&msg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout") || websocket.IsUnexpectedCloseError(err))
}

func TestHandleEvents_UnsubscribesOnClose(t *testing.T) {
	bus, wsURL := setupEventsServer(t, "1ms")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?platform_id=p1&organization_id=o1", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("p1_o1") == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("p1_o1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHandleEvents_MissingTenantParamsRejected(t *testing.T) {
	_, wsURL := setupEventsServer(t, "1ms")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?platform_id=p1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEvents_ThrottlesBursts(t *testing.T) {
	// One token per second: a burst of publishes collapses to one push
	bus, wsURL := setupEventsServer(t, "1s")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?platform_id=p1&organization_id=o1", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return bus.SubscriberCount("p1_o1") == 1
	}, time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		bus.Publish(models.Notification{
			ID: "ntf_burst", Title: "Burst",
			PlatformID: "p1", OrganizationID: "o1",
		})
	}

	received := 0
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		received++
	}
	assert.Equal(t, 1, received)
}
