package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/protocol"
	"github.com/jsphweid/harmonyjam/tone"
	"github.com/jsphweid/harmonyjam/util"
	log "github.com/sirupsen/logrus"
)

type EntryKind string

const (
	EntrySystem EntryKind = "system"
	EntryUser   EntryKind = "user"
)

// LogEntry is one line of a room's message log.
type LogEntry struct {
	Kind        EntryKind
	OriginID    string
	DisplayName string
	Text        string
	TimestampMs int64 // server Unix ms at fan-out
}

// Sender carries client frames to the server.
type Sender interface {
	Send(f protocol.ClientFrame) error
}

type roomState struct {
	displayName  string // our own name in this room, reused on rejoin
	participants []string
	names        map[string]string
	messages     []LogEntry
	lastNote     *model.Message
}

func newRoomState(displayName string) *roomState {
	return &roomState{displayName: displayName, names: make(map[string]string)}
}

type handler func(s *Session, r *roomState, msg model.Message)

var handlers = map[model.Kind]handler{
	model.KindPresence: (*Session).onPresence,
	model.KindChat:     (*Session).onChat,
	model.KindNote:     (*Session).onNote,
}

// Session mirrors the state of the rooms this client is in and keeps it in
// step with what the server sends. Like the server it keeps a client in at
// most one room.
type Session struct {
	sender Sender
	engine tone.Engine
	clock  clock.Clock

	mu     sync.Mutex
	selfID string
	rooms  map[string]*roomState

	onChange func()
	debounce func(f func())
}

type Option func(*Session)

// WithClock sets the clock that times the release of remote notes.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// OnChange registers f to run after state changes, coalescing bursts that
// arrive within wait.
func OnChange(f func(), wait time.Duration) Option {
	return func(s *Session) {
		s.onChange = f
		s.debounce = debounce.New(wait)
	}
}

func NewSession(sender Sender, engine tone.Engine, opts ...Option) *Session {
	s := &Session{
		sender: sender,
		engine: engine,
		clock:  clock.New(),
		rooms:  make(map[string]*roomState),
	}
	if s.engine == nil {
		s.engine = tone.Silent{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join enters roomID, leaving any room this session is already in.
func (s *Session) Join(roomID, displayName string) error {
	if displayName == "" {
		displayName = constants.DefaultDisplayName
	}
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; ok {
		s.mu.Unlock()
		return nil
	}
	for id := range s.rooms {
		delete(s.rooms, id)
	}
	s.rooms[roomID] = newRoomState(displayName)
	s.mu.Unlock()

	s.changed()
	return s.sender.Send(protocol.ClientFrame{Type: protocol.Join, RoomID: roomID, DisplayName: displayName})
}

// Leave exits roomID and forgets everything about it.
func (s *Session) Leave(roomID string) error {
	s.mu.Lock()
	_, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.changed()
	return s.sender.Send(protocol.ClientFrame{Type: protocol.Leave, RoomID: roomID})
}

// PlayNote relays a note to the other participants. Nothing is awaited.
func (s *Session) PlayNote(roomID string, note model.NoteEvent) error {
	if !s.InRoom(roomID) {
		return nil
	}
	return s.sender.Send(protocol.ClientFrame{Type: protocol.PlayNote, RoomID: roomID, Note: &note})
}

// SendChat posts text to the room. The line shows up in the log once the
// server echoes it back.
func (s *Session) SendChat(roomID, text, displayName string) error {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if ok && displayName == "" {
		displayName = r.displayName
	}
	s.mu.Unlock()
	if !ok || text == "" {
		return nil
	}
	return s.sender.Send(protocol.ClientFrame{Type: protocol.SendChat, RoomID: roomID, Text: text, DisplayName: displayName})
}

// HandleFrame applies one server frame.
func (s *Session) HandleFrame(f protocol.ServerFrame) {
	logger := log.WithFields(log.Fields{"function": "Session.HandleFrame", "type": f.Type})
	if f.Type == protocol.Welcome {
		s.mu.Lock()
		s.selfID = f.ConnectionID
		s.mu.Unlock()
		logger.WithField("conn", f.ConnectionID).Debug("welcomed")
		return
	}

	msg, err := f.Message()
	if err != nil {
		logger.Warn(err.Error())
		return
	}
	h, ok := handlers[msg.Kind]
	if !ok {
		logger.Warn("no handler for message kind " + string(msg.Kind))
		return
	}

	s.mu.Lock()
	r, ok := s.rooms[msg.RoomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	h(s, r, msg)
	s.mu.Unlock()

	if msg.Kind == model.KindNote {
		// live trigger for every arrival, lastNote only keeps the latest
		note := *msg.Note
		s.engine.NoteOn(note.Pitch, note.Velocity)
		s.clock.AfterFunc(time.Duration(note.DurationMs)*time.Millisecond, func() {
			s.engine.NoteOff(note.SourceKey)
		})
	}
	s.changed()
}

// Reconnected re-issues a join for each room we were in. A reconnect is a
// new identity on the server so the participant view starts over.
func (s *Session) Reconnected() {
	s.mu.Lock()
	frames := make([]protocol.ClientFrame, 0, len(s.rooms))
	for _, id := range util.SortedKeys(s.rooms) {
		r := s.rooms[id]
		r.participants = nil
		r.names = make(map[string]string)
		frames = append(frames, protocol.ClientFrame{Type: protocol.Join, RoomID: id, DisplayName: r.displayName})
	}
	s.mu.Unlock()

	for _, f := range frames {
		if err := s.sender.Send(f); err != nil {
			log.WithFields(log.Fields{"function": "Session.Reconnected", "room": f.RoomID}).Warn("rejoin failed: " + err.Error())
		}
	}
	s.changed()
}

func (s *Session) onPresence(r *roomState, msg model.Message) {
	p := msg.Presence
	switch p.Kind {
	case model.PresenceJoined:
		name := p.DisplayName
		if name == "" {
			name = constants.DefaultDisplayName
		}
		if _, known := r.names[p.ConnectionID]; !known {
			r.participants = append(r.participants, p.ConnectionID)
		}
		r.names[p.ConnectionID] = name
		r.messages = append(r.messages, LogEntry{
			Kind:        EntrySystem,
			OriginID:    p.ConnectionID,
			DisplayName: name,
			Text:        fmt.Sprintf("%s joined the room", name),
			TimestampMs: msg.ServerTimestampMs,
		})
	case model.PresenceLeft:
		r.participants = util.Remove(r.participants, p.ConnectionID)
		delete(r.names, p.ConnectionID)
		r.messages = append(r.messages, LogEntry{
			Kind:        EntrySystem,
			OriginID:    p.ConnectionID,
			Text:        fmt.Sprintf("User left: %s", util.Truncate(p.ConnectionID, 8)),
			TimestampMs: msg.ServerTimestampMs,
		})
	}
}

func (s *Session) onChat(r *roomState, msg model.Message) {
	r.messages = append(r.messages, LogEntry{
		Kind:        EntryUser,
		OriginID:    msg.OriginID,
		DisplayName: msg.Chat.DisplayName,
		Text:        msg.Chat.Text,
		TimestampMs: msg.ServerTimestampMs,
	})
}

func (s *Session) onNote(r *roomState, msg model.Message) {
	m := msg
	r.lastNote = &m
}

func (s *Session) changed() {
	if s.onChange == nil {
		return
	}
	s.debounce(s.onChange)
}

func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms lists the rooms this session is in.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.SortedKeys(s.rooms)
}

// Participants returns the other participants of roomID in arrival order.
func (s *Session) Participants(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	res := make([]string, len(r.participants))
	copy(res, r.participants)
	return res
}

// DisplayName resolves a participant's name, "Anonymous" when unknown.
func (s *Session) DisplayName(roomID, connID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		if name, ok := r.names[connID]; ok {
			return name
		}
	}
	return constants.DefaultDisplayName
}

func (s *Session) Messages(roomID string) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	res := make([]LogEntry, len(r.messages))
	copy(res, r.messages)
	return res
}

func (s *Session) ClearMessages(roomID string) {
	s.mu.Lock()
	if r, ok := s.rooms[roomID]; ok {
		r.messages = nil
	}
	s.mu.Unlock()
	s.changed()
}

// LastNote is the most recent note message received in roomID, or nil.
func (s *Session) LastNote(roomID string) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.lastNote == nil {
		return nil
	}
	m := *r.lastNote
	return &m
}
