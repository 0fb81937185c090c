package room

import (
	"sync"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/constants"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/util"
	log "github.com/sirupsen/logrus"
)

// Manager is the in-memory authority over rooms and their membership.
//
// Lock discipline: m.mu guards the rooms map, connection sinks and the
// connection to room index. Each Room's own lock sequences everything inside
// that room. The two are never held together.
type Manager struct {
	clock clock.Clock

	mu       sync.Mutex
	rooms    map[string]*Room
	sinks    map[string]Sink
	memberOf map[string]string
}

func NewManager(c clock.Clock) *Manager {
	return &Manager{
		clock:    c,
		rooms:    make(map[string]*Room),
		sinks:    make(map[string]Sink),
		memberOf: make(map[string]string),
	}
}

// Connect registers the delivery sink for a new connection.
func (m *Manager) Connect(connID string, sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[connID] = sink
}

// Disconnect is an implicit Leave of the connection's room followed by
// forgetting the connection.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	roomID, inRoom := m.memberOf[connID]
	m.mu.Unlock()

	if inRoom {
		m.Leave(connID, roomID)
	}

	m.mu.Lock()
	delete(m.sinks, connID)
	m.mu.Unlock()
}

// Join adds connID to roomID, creating the room if needed, and tells the
// other participants. A connection is in at most one room: joining another
// room leaves the current one first. Re-joining the current room does
// nothing.
func (m *Manager) Join(connID, roomID, displayName string) {
	logger := log.WithFields(log.Fields{
		"function": "Manager.Join",
		"conn":     connID,
		"room":     roomID,
	})
	if roomID == "" {
		return
	}

	m.mu.Lock()
	sink, known := m.sinks[connID]
	prev, inRoom := m.memberOf[connID]
	m.mu.Unlock()

	if !known {
		logger.Debug("join from unknown connection")
		return
	}
	if inRoom && prev == roomID {
		logger.Debug("already a member")
		return
	}
	if inRoom {
		m.Leave(connID, prev)
	}
	if displayName == "" {
		displayName = constants.DefaultDisplayName
	}

	for {
		r := m.getOrCreate(roomID)
		r.mu.Lock()
		if r.closed {
			// emptied between lookup and lock
			r.mu.Unlock()
			m.forget(roomID, r)
			continue
		}
		r.add(&Participant{ConnectionID: connID, DisplayName: displayName, sink: sink})
		r.broadcast(m.clock, model.Message{
			Kind: model.KindPresence,
			Presence: &model.PresencePayload{
				Kind:         model.PresenceJoined,
				ConnectionID: connID,
				DisplayName:  displayName,
			},
		}, connID)
		r.mu.Unlock()
		break
	}

	m.mu.Lock()
	m.memberOf[connID] = roomID
	m.mu.Unlock()
	logger.Info("joined")
}

// Leave removes connID from roomID and tells whoever remains. The room is
// destroyed when its last participant leaves.
func (m *Manager) Leave(connID, roomID string) {
	r := m.lookup(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	p := r.remove(connID)
	if p == nil {
		r.mu.Unlock()
		return
	}
	r.broadcast(m.clock, model.Message{
		Kind: model.KindPresence,
		Presence: &model.PresencePayload{
			Kind:         model.PresenceLeft,
			ConnectionID: connID,
			DisplayName:  p.DisplayName,
		},
	}, connID)
	empty := len(r.participants) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	m.mu.Lock()
	if m.memberOf[connID] == roomID {
		delete(m.memberOf, connID)
	}
	m.mu.Unlock()
	if empty {
		m.forget(roomID, r)
	}

	logger := log.WithFields(log.Fields{"function": "Manager.Leave", "conn": connID, "room": roomID})
	logger.Info("left")
	if empty {
		logger.Info("room destroyed")
	}
}

// RelayNote sends a note to everyone in the room except the sender.
// Notes from non-participants are dropped.
func (m *Manager) RelayNote(connID, roomID string, note model.NoteEvent) {
	r := m.lookup(roomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[connID]; !ok {
		return
	}
	r.broadcast(m.clock, model.Message{
		Kind:     model.KindNote,
		OriginID: connID,
		Note:     &note,
	}, connID)
	log.WithFields(log.Fields{
		"function": "Manager.RelayNote",
		"room":     roomID,
		"pitch":    note.Pitch,
	}).Debug("note relayed")
}

// RelayChat sends a chat line to everyone in the room, the sender included,
// so the sender sees its own line in server order.
func (m *Manager) RelayChat(connID, roomID, text, displayName string) {
	r := m.lookup(roomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[connID]
	if !ok {
		return
	}
	if displayName == "" {
		displayName = p.DisplayName
	}
	r.broadcast(m.clock, model.Message{
		Kind:     model.KindChat,
		OriginID: connID,
		Chat:     &model.ChatPayload{DisplayName: displayName, Text: text},
	}, "")
}

// RoomOf returns the room connID currently belongs to.
func (m *Manager) RoomOf(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.memberOf[connID]
	return roomID, ok
}

// Participants returns the members of roomID in join order.
func (m *Manager) Participants(roomID string) []Participant {
	r := m.lookup(roomID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Rooms summarizes every live room, sorted by id.
func (m *Manager) Rooms() []model.RoomSummary {
	m.mu.Lock()
	rooms := make(map[string]*Room, len(m.rooms))
	for id, r := range m.rooms {
		rooms[id] = r
	}
	m.mu.Unlock()

	res := make([]model.RoomSummary, 0, len(rooms))
	for _, id := range util.SortedKeys(rooms) {
		r := rooms[id]
		r.mu.Lock()
		n := len(r.participants)
		r.mu.Unlock()
		if n > 0 {
			res = append(res, model.RoomSummary{RoomID: id, Participants: n})
		}
	}
	return res
}

// Connections is the number of registered connections.
func (m *Manager) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

func (m *Manager) lookup(roomID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID]
}

func (m *Manager) getOrCreate(roomID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		m.rooms[roomID] = r
		log.WithFields(log.Fields{"function": "Manager.getOrCreate", "room": roomID}).Info("room created")
	}
	return r
}

func (m *Manager) forget(roomID string, r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[roomID] == r {
		delete(m.rooms, roomID)
	}
}
