package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/protocol"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("not connected")

// Handler consumes what arrives on a Conn. Session implements it.
type Handler interface {
	HandleFrame(f protocol.ServerFrame)
	Reconnected()
}

// Conn is a websocket link to the room server that redials with linear
// backoff when it drops.
type Conn struct {
	url      string
	header   http.Header
	dialer   *websocket.Dialer
	attempts int
	delay    time.Duration

	mu sync.Mutex // guards ws and serializes writes
	ws *websocket.Conn
}

type ConnOption func(*Conn)

// WithRetry sets how many dial attempts are made per (re)connect and the
// backoff step: attempt n waits n*delay before dialing. At least one attempt
// is always made.
func WithRetry(attempts int, delay time.Duration) ConnOption {
	return func(c *Conn) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = attempts
		c.delay = delay
	}
}

func WithHeader(h http.Header) ConnOption {
	return func(c *Conn) { c.header = h }
}

func NewConn(url string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:      url,
		dialer:   websocket.DefaultDialer,
		attempts: constants.ReconnectAttempts,
		delay:    constants.ReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send writes one frame. With no live connection the frame is dropped and
// ErrNotConnected returned.
func (c *Conn) Send(f protocol.ClientFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	return errors.Wrap(c.ws.WriteJSON(f), "write frame")
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Run connects and feeds frames to h until ctx is done or reconnecting runs
// out of attempts. Every successful redial is reported to h.Reconnected.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	logger := log.WithFields(log.Fields{"function": "Conn.Run", "url": c.url})
	if err := c.connect(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		c.drop()
	}()

	for {
		err := c.readLoop(h)
		c.drop()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("connection lost: " + err.Error())
		if err := c.connect(ctx); err != nil {
			return err
		}
		h.Reconnected()
	}
}

func (c *Conn) connect(ctx context.Context) error {
	logger := log.WithFields(log.Fields{"function": "Conn.connect", "url": c.url})
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.delay
			logger.WithFields(log.Fields{"attempt": attempt + 1, "wait": wait}).Info("retrying")
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		logger.Info("connected")
		return nil
	}
	return errors.Wrapf(lastErr, "gave up after %d attempts", c.attempts)
}

func (c *Conn) readLoop(h Handler) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var f protocol.ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			log.WithFields(log.Fields{"function": "Conn.readLoop"}).Warn("malformed frame: " + err.Error())
			continue
		}
		h.HandleFrame(f)
	}
}

func (c *Conn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}

// Close tears down the current connection. Run redials unless its context
// is cancelled too.
func (c *Conn) Close() {
	c.drop()
}
