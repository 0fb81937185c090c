package room

import (
	"sync"

	"github.com/jsphweid/harmonyjam/clock"
	"github.com/jsphweid/harmonyjam/model"
	"github.com/jsphweid/harmonyjam/util"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
)

// Sink delivers messages to one connection. Deliver must not block; it
// reports false when the message was dropped.
type Sink interface {
	Deliver(msg model.Message) bool
}

type Participant struct {
	ConnectionID string
	DisplayName  string
	sink         Sink
}

// Room is the sequencing point for everything that happens in it. All
// mutations and fan-outs run under mu, so every member observes messages in
// the order they were processed.
type Room struct {
	id string

	mu           sync.Mutex
	participants map[string]*Participant
	order        []string // join order, fan-out goes in this order
	seq          uint64
	closed       bool // set once the last participant leaves
}

func newRoom(id string) *Room {
	return &Room{
		id:           id,
		participants: make(map[string]*Participant),
	}
}

func (r *Room) add(p *Participant) {
	r.participants[p.ConnectionID] = p
	r.order = append(r.order, p.ConnectionID)
}

func (r *Room) remove(connID string) *Participant {
	p, ok := r.participants[connID]
	if !ok {
		return nil
	}
	delete(r.participants, connID)
	r.order = util.Remove(r.order, connID)
	return p
}

// broadcast stamps msg and hands it to every participant except exclude.
// Callers hold r.mu.
func (r *Room) broadcast(c clock.Clock, msg model.Message, exclude string) model.Message {
	r.seq++
	msg.ID = ksuid.New().String()
	msg.RoomID = r.id
	msg.Seq = r.seq
	msg.ServerTimestampMs = c.NowMs()

	for _, connID := range r.order {
		if connID == exclude {
			continue
		}
		if !r.participants[connID].sink.Deliver(msg) {
			log.WithFields(log.Fields{
				"function": "Room.broadcast",
				"room":     r.id,
				"conn":     connID,
				"kind":     msg.Kind,
			}).Debug("delivery dropped")
		}
	}
	return msg
}

func (r *Room) snapshot() []Participant {
	res := make([]Participant, 0, len(r.order))
	for _, connID := range r.order {
		p := r.participants[connID]
		res = append(res, Participant{ConnectionID: p.ConnectionID, DisplayName: p.DisplayName})
	}
	return res
}
