package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/protocol"
	"github.com/jsphweid/harmonyjam/room"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// conn is one websocket client. It is the room.Sink for that client: room
// deliveries go into a bounded queue drained by the write loop, and a full
// queue drops the message.
type conn struct {
	id      string
	ws      *websocket.Conn
	manager *room.Manager
	send    chan protocol.ServerFrame
	done    chan struct{}
	once    sync.Once
	logger  *log.Entry
}

func newConn(ws *websocket.Conn, manager *room.Manager, sendBuffer int) *conn {
	id := uuid.New().String()
	return &conn{
		id:      id,
		ws:      ws,
		manager: manager,
		send:    make(chan protocol.ServerFrame, sendBuffer),
		done:    make(chan struct{}),
		logger:  log.WithFields(log.Fields{"function": "conn", "conn": id}),
	}
}

func (c *conn) Deliver(msg model.Message) bool {
	return c.enqueue(protocol.FromMessage(msg))
}

func (c *conn) enqueue(f protocol.ServerFrame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// serve blocks until the client goes away, then leaves its room.
func (c *conn) serve() {
	c.logger.Info("client connected")
	c.manager.Connect(c.id, c)
	c.enqueue(protocol.WelcomeFrame(c.id))

	go c.writeLoop()
	c.readLoop()

	c.close()
	c.manager.Disconnect(c.id)
	c.logger.Info("client disconnected")
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed: " + err.Error())
			}
			return
		}
		var f protocol.ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed frame: " + err.Error())
			continue
		}
		if err := f.Validate(); err != nil {
			c.logger.Warn("invalid frame: " + err.Error())
			continue
		}
		c.dispatch(f)
	}
}

func (c *conn) dispatch(f protocol.ClientFrame) {
	switch f.Type {
	case protocol.Join:
		c.manager.Join(c.id, f.RoomID, f.DisplayName)
	case protocol.Leave:
		c.manager.Leave(c.id, f.RoomID)
	case protocol.PlayNote:
		n := f.Note
		c.manager.RelayNote(c.id, f.RoomID, model.NewNoteEvent(n.SourceKey, n.Pitch, n.Velocity, n.StartOffsetMs, n.DurationMs))
	case protocol.SendChat:
		c.manager.RelayChat(c.id, f.RoomID, f.Text, f.DisplayName)
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.logger.Warn("write failed: " + err.Error())
				c.close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
