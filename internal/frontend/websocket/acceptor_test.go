package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/relay/internal/config"
	"github.com/cory-johannsen/relay/internal/relay"
	"github.com/cory-johannsen/relay/internal/testutil"
)

const readTimeout = 2 * time.Second

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  1 << 16,
		WriteTimeout:    time.Second,
		PongWait:        5 * time.Second,
		SendBuffer:      64,
	}
}

// startAcceptor runs an acceptor backed by a real relay and returns its address.
func startAcceptor(t *testing.T, cfg config.ServerConfig, routes ...RouteRegistrar) (*Acceptor, *relay.Relay) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := relay.New(logger)
	a := NewAcceptor(cfg, r, logger, routes...)

	done := make(chan error, 1)
	go func() { done <- a.ListenAndServe() }()

	require.Eventually(t, func() bool { return a.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() {
		a.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("acceptor did not stop in time")
		}
	})
	return a, r
}

func welcome(t *testing.T, c *testutil.WSClient) string {
	t.Helper()
	msg := c.ReadJSON("welcome", readTimeout)
	id, ok := msg["connectionId"].(string)
	require.True(t, ok)
	return id
}

func TestAcceptor_WelcomesNewConnections(t *testing.T) {
	a, _ := startAcceptor(t, testServerConfig())
	assert.True(t, a.IsRunning())

	c1 := testutil.NewWSClient(t, a.Addr())
	c2 := testutil.NewWSClient(t, a.Addr())

	id1 := welcome(t, c1)
	id2 := welcome(t, c2)
	assert.True(t, strings.HasPrefix(id1, "conn_"))
	assert.NotEqual(t, id1, id2)
}

func TestAcceptor_HostJoinAndRelay(t *testing.T) {
	a, _ := startAcceptor(t, testServerConfig())

	host := testutil.NewWSClient(t, a.Addr())
	welcome(t, host)
	host.SendJSON(map[string]any{"type": "host_room", "roomId": "R"})
	host.ReadJSON("room_created", readTimeout)

	client := testutil.NewWSClient(t, a.Addr())
	clientID := welcome(t, client)
	client.SendJSON(map[string]any{"type": "join_room", "roomId": "R", "playerName": "Alice"})
	client.ReadJSON("joined_room", readTimeout)

	joined := host.ReadJSON("client_joined", readTimeout)
	assert.Equal(t, clientID, joined["clientId"])
	assert.Equal(t, "Alice", joined["playerName"])

	host.Send("state 1")
	assert.Equal(t, "state 1", client.Read(readTimeout))

	host.Send(clientID + "|TO|private")
	assert.Equal(t, "private", client.Read(readTimeout))

	client.Send("input up")
	assert.Equal(t, clientID+"|FROM|input up", host.Read(readTimeout))
}

func TestAcceptor_ClientDropNotifiesHost(t *testing.T) {
	a, _ := startAcceptor(t, testServerConfig())

	host := testutil.NewWSClient(t, a.Addr())
	welcome(t, host)
	host.SendJSON(map[string]any{"type": "host_room", "roomId": "R"})
	host.ReadJSON("room_created", readTimeout)

	client := testutil.NewWSClient(t, a.Addr())
	clientID := welcome(t, client)
	client.SendJSON(map[string]any{"type": "join_room", "roomId": "R", "playerName": "Bob"})
	client.ReadJSON("joined_room", readTimeout)
	host.ReadJSON("client_joined", readTimeout)

	client.Close()

	left := host.ReadJSON("client_left", readTimeout)
	assert.Equal(t, clientID, left["clientId"])
	assert.Equal(t, "Bob", left["playerName"])
}

func TestAcceptor_HostDropClosesRoom(t *testing.T) {
	a, r := startAcceptor(t, testServerConfig())

	host := testutil.NewWSClient(t, a.Addr())
	welcome(t, host)
	host.SendJSON(map[string]any{"type": "host_room", "roomId": "R"})
	host.ReadJSON("room_created", readTimeout)

	client := testutil.NewWSClient(t, a.Addr())
	welcome(t, client)
	client.SendJSON(map[string]any{"type": "join_room", "roomId": "R", "playerName": "Bob"})
	client.ReadJSON("joined_room", readTimeout)

	host.Close()

	client.ReadJSON("room_closed", readTimeout)
	assert.Eventually(t, func() bool { return len(r.Rooms()) == 0 }, readTimeout, 10*time.Millisecond)
}

func TestAcceptor_OversizedFrameClosesConnection(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxMessageSize = 64
	a, r := startAcceptor(t, cfg)

	c := testutil.NewWSClient(t, a.Addr())
	welcome(t, c)
	c.Send(strings.Repeat("x", 256))

	assert.Eventually(t, func() bool {
		conns, _ := r.Stats()
		return conns == 0
	}, readTimeout, 10*time.Millisecond)
}

type healthRoute struct{}

func (healthRoute) Register(r *mux.Router) {
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

func TestAcceptor_PlainHTTPRoute(t *testing.T) {
	a, _ := startAcceptor(t, testServerConfig(), healthRoute{})

	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAcceptor_NonUpgradeRequestRejected(t *testing.T) {
	a, _ := startAcceptor(t, testServerConfig())

	resp, err := http.Get("http://" + a.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAcceptor_StopClosesClients(t *testing.T) {
	logger := zaptest.NewLogger(t)
	r := relay.New(logger)
	a := NewAcceptor(testServerConfig(), r, logger)

	done := make(chan error, 1)
	go func() { done <- a.ListenAndServe() }()
	require.Eventually(t, func() bool { return a.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	c := testutil.NewWSClient(t, a.Addr())
	welcome(t, c)

	a.Stop()
	a.Stop()
	assert.False(t, a.IsRunning())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}

	conns, _ := r.Stats()
	assert.Equal(t, 0, conns)

	_ = c.Conn().SetReadDeadline(time.Now().Add(readTimeout))
	_, _, err := c.Conn().ReadMessage()
	assert.Error(t, err)
}
