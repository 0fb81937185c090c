package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/protocol"
	"github.com/jsphweid/harmonyjam/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var prefixes = []string{"http://localhost:", "http://127.0.0.1:"}

func newTestServer(t *testing.T) (*httptest.Server, *room.Manager) {
	manager := room.NewManager(clock.New())
	ts := httptest.NewServer(New(manager, prefixes, 64).Router())
	t.Cleanup(ts.Close)
	return ts, manager
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
	id string
}

func dial(t *testing.T, ts *httptest.Server) *testClient {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	c := &testClient{t: t, ws: ws}
	welcome := c.read()
	require.Equal(t, protocol.Welcome, welcome.Type)
	c.id = welcome.ConnectionID
	return c
}

func (c *testClient) send(f protocol.ClientFrame) {
	require.NoError(c.t, c.ws.WriteJSON(f))
}

func (c *testClient) read() protocol.ServerFrame {
	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f protocol.ServerFrame
	require.NoError(c.t, c.ws.ReadJSON(&f))
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestSocketJamScenario(t *testing.T) {
	ts, manager := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	a.send(protocol.ClientFrame{Type: protocol.Join, RoomID: "jam1", DisplayName: "alice"})
	waitFor(t, func() bool { return len(manager.Participants("jam1")) == 1 })
	b.send(protocol.ClientFrame{Type: protocol.Join, RoomID: "jam1", DisplayName: "bob"})

	joined := a.read()
	assert.Equal(t, protocol.Presence, joined.Type)
	assert.Equal(t, model.PresenceJoined, joined.Kind)
	assert.Equal(t, b.id, joined.ConnectionID)
	assert.Equal(t, "bob", joined.DisplayName)

	note := model.NewNoteEvent("KeyG", "G4", 0.8, 0, 50)
	b.send(protocol.ClientFrame{Type: protocol.PlayNote, RoomID: "jam1", Note: &note})
	played := a.read()
	assert.Equal(t, protocol.NotePlayed, played.Type)
	assert.Equal(t, "G4", played.Note.Pitch)
	assert.Equal(t, b.id, played.ConnectionID)

	// the sender's next frame is its own chat echo, so the note never came back
	b.send(protocol.ClientFrame{Type: protocol.SendChat, RoomID: "jam1", Text: "hey", DisplayName: "bob"})
	assert.Equal(t, "hey", a.read().Text)
	echo := b.read()
	assert.Equal(t, protocol.ChatReceived, echo.Type)
	assert.Equal(t, "hey", echo.Text)

	a.ws.Close()
	left := b.read()
	assert.Equal(t, model.PresenceLeft, left.Kind)
	assert.Equal(t, a.id, left.ConnectionID)

	b.send(protocol.ClientFrame{Type: protocol.Leave, RoomID: "jam1"})
	waitFor(t, func() bool { return len(manager.Rooms()) == 0 })
}

func TestMalformedFramesKeepConnection(t *testing.T) {
	ts, manager := newTestServer(t)
	a := dial(t, ts)

	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	a.send(protocol.ClientFrame{Type: "dance", RoomID: "r"})
	a.send(protocol.ClientFrame{Type: protocol.Join, RoomID: "r"})

	waitFor(t, func() bool { return len(manager.Participants("r")) == 1 })
}

func TestRejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestOriginPolicy(t *testing.T) {
	allowed := OriginPolicy(prefixes)
	assert.True(t, allowed(""))
	assert.True(t, allowed("http://localhost:5173"))
	assert.True(t, allowed("http://127.0.0.1:3000"))
	assert.False(t, allowed("https://example.com"))
}

func TestHealthAndRooms(t *testing.T) {
	manager := room.NewManager(clock.NewManual(0))
	s := New(manager, prefixes, 8)
	sink := &nullSink{}
	manager.Connect("A", sink)
	manager.Join("A", "jam1", "")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	assert := assert.New(t)
	assert.Equal(200, resp.StatusCode)
	var health model.HealthResponse
	assert.NoError(json.Unmarshal(body, &health))
	assert.Equal("ok", health.Status)
	assert.Equal(1, health.Clients)
	assert.Equal(1, health.Rooms)

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	var rooms []model.RoomSummary
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &rooms))
	assert.Equal([]model.RoomSummary{{RoomID: "jam1", Participants: 1}}, rooms)
}

func TestCorsPreflight(t *testing.T) {
	s := New(room.NewManager(clock.NewManual(0)), prefixes, 8)
	req := httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestUnknownRoute(t *testing.T) {
	s := New(room.NewManager(clock.NewManual(0)), prefixes, 8)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body model.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no route for /search", body.Error)
}

type nullSink struct{}

func (nullSink) Deliver(model.Message) bool { return true }
