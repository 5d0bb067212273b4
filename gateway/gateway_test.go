package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlink/floorlink/auth"
	"github.com/floorlink/floorlink/hub"
	"github.com/floorlink/floorlink/message"
)

type fixture struct {
	hub    *hub.Hub
	server *Server
	url    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	h := hub.New(hub.Options{QueueCapacity: 32, ErrorThreshold: 3, WriteTimeout: time.Second})
	d := hub.NewDispatcher(h)
	m := hub.NewMonitor(h, hub.MonitorOptions{})
	ch := hub.NewCommandHandler(h, d, m)
	verifier := auth.NewStaticVerifier(map[string]string{"tok-1": "user-1"})

	gw := New(h, d, ch, verifier, Options{
		WriteTimeout: time.Second,
		ReadTimeout:  5 * time.Second,
		PingInterval: time.Minute,
		CommandRate:  100,
		CommandBurst: 100,
	})

	srv := httptest.NewServer(gw)
	t.Cleanup(func() {
		h.CloseAll("test done")
		srv.Close()
	})

	return &fixture{
		hub:    h,
		server: gw,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	client, resp, err := websocket.DefaultDialer.Dial(f.url+query, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type wireMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func readMessage(t *testing.T, client *websocket.Conn) wireMessage {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg wireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandshakeEstablishesConnection(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1")

	msg := readMessage(t, client)
	require.Equal(t, message.TypeConnectionEstablished, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	var payload struct {
		ConnectionID string `json:"connection_id"`
		UserID       string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.NotEmpty(t, payload.ConnectionID)
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, 1, f.hub.Registry().Len())
}

func TestInvalidTokenClosesWithCredentialCode(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=wrong")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseInvalidCredential),
		"expected close code %d, got %v", CloseInvalidCredential, err)
	assert.Equal(t, 0, f.hub.Registry().Len())
}

func TestMissingTokenClosesWithCredentialCode(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseInvalidCredential))
}

func TestBearerHeaderAuthenticates(t *testing.T) {
	f := newFixture(t)
	header := map[string][]string{"Authorization": {"Bearer tok-1"}}
	client, resp, err := websocket.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })

	msg := readMessage(t, client)
	assert.Equal(t, message.TypeConnectionEstablished, msg.Type)
}

func TestLineFilterAppliesDefaultSubscriptions(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1&line_id=L1")

	msg := readMessage(t, client)
	require.Equal(t, message.TypeConnectionEstablished, msg.Type)

	var payload struct {
		Subscriptions []string `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.ElementsMatch(t,
		[]string{"line:L1", "oee:L1", "downtime:line:L1"}, payload.Subscriptions)

	assert.Contains(t, f.hub.Index().SubscribersFor(hub.DimLine, "L1"), connID(t, msg))
	assert.Equal(t, 3, f.hub.Index().Total())
}

func TestSubscriptionListAndPriorityFilters(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1&subscriptions=quality,changeover,bogus&priority=high")

	msg := readMessage(t, client)
	require.Equal(t, message.TypeConnectionEstablished, msg.Type)

	var payload struct {
		Subscriptions []string `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.ElementsMatch(t,
		[]string{"quality:all", "changeover:all", "escalation:priority:high"},
		payload.Subscriptions, "unknown subscription names are ignored")

	id := connID(t, msg)
	assert.Contains(t, f.hub.Index().SubscribersFor(hub.DimQuality, "anything"), id)
	assert.Contains(t, f.hub.Index().EscalationSubscribers("", "critical"), id,
		"priority threshold matches higher severities")
}

func connID(t *testing.T, msg wireMessage) string {
	t.Helper()
	var payload struct {
		ConnectionID string `json:"connection_id"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	return payload.ConnectionID
}

func TestSubscribeRoundTrip(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1")
	readMessage(t, client) // connection_established

	require.NoError(t, client.WriteJSON(map[string]string{
		"type":              "subscribe",
		"subscription_type": "equipment",
		"target_id":         "EQ7",
	}))

	msg := readMessage(t, client)
	require.Equal(t, message.TypeSubscriptionConfirmed, msg.Type)

	var reply struct {
		SubscriptionType string `json:"subscription_type"`
		Target           string `json:"target"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.Equal(t, "equipment", reply.SubscriptionType)
	assert.Equal(t, "EQ7", reply.Target)
}

func TestSubscribedClientReceivesBroadcast(t *testing.T) {
	f := newFixture(t)
	d := hub.NewDispatcher(f.hub)
	b := hub.NewBroadcaster(f.hub, d)

	client := f.dial(t, "?token=tok-1")
	readMessage(t, client)

	require.NoError(t, client.WriteJSON(map[string]string{
		"type":              "subscribe",
		"subscription_type": "line",
		"target_id":         "L1",
	}))
	require.Equal(t, message.TypeSubscriptionConfirmed, readMessage(t, client).Type)

	b.BroadcastProductionUpdate(message.ProductionUpdate{LineID: "L1", UnitsOK: 50})

	msg := readMessage(t, client)
	require.Equal(t, message.TypeProductionUpdate, msg.Type)

	var update message.ProductionUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	assert.Equal(t, int64(50), update.UnitsOK)
}

func TestInvalidPayloadGetsErrorReply(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1")
	readMessage(t, client)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{broken")))

	msg := readMessage(t, client)
	require.Equal(t, message.TypeError, msg.Type)

	var data message.ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, message.CodeInvalidJSON, data.Code)
}

func TestPingCommandRoundTrip(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1")
	readMessage(t, client)

	require.NoError(t, client.WriteJSON(map[string]string{"type": "ping"}))
	msg := readMessage(t, client)
	assert.Equal(t, message.TypePong, msg.Type)
}

func TestClientDisconnectRemovesConnection(t *testing.T) {
	f := newFixture(t)
	client := f.dial(t, "?token=tok-1")
	readMessage(t, client)
	require.Equal(t, 1, f.hub.Registry().Len())

	require.NoError(t, client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second)))
	_ = client.Close()

	assert.Eventually(t, func() bool {
		return f.hub.Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "disconnect must cascade out of the registry")
}

func TestDrainRefusesNewConnections(t *testing.T) {
	f := newFixture(t)
	f.server.Drain()

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?token=tok-1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}

func TestCommandRateLimit(t *testing.T) {
	h := hub.New(hub.Options{QueueCapacity: 64, WriteTimeout: time.Second})
	d := hub.NewDispatcher(h)
	m := hub.NewMonitor(h, hub.MonitorOptions{})
	ch := hub.NewCommandHandler(h, d, m)
	verifier := auth.NewStaticVerifier(map[string]string{"tok-1": "user-1"})

	gw := New(h, d, ch, verifier, Options{
		WriteTimeout: time.Second,
		ReadTimeout:  5 * time.Second,
		PingInterval: time.Minute,
		CommandRate:  1,
		CommandBurst: 1,
	})
	srv := httptest.NewServer(gw)
	t.Cleanup(func() {
		h.CloseAll("test done")
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url+"?token=tok-1", nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })
	readMessage(t, client)

	// Burst of one: the second immediate command is throttled.
	require.NoError(t, client.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, client.WriteJSON(map[string]string{"type": "ping"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg := readMessage(t, client)
		got[msg.Type] = true
		if msg.Type == message.TypeError {
			var data message.ErrorData
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, message.CodeRateLimited, data.Code)
		}
	}
	assert.True(t, got[message.TypePong])
	assert.True(t, got[message.TypeError])
}
