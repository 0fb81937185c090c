package model

// Kind tags the variant carried by a Message.
type Kind string

const (
	KindPresence Kind = "presence"
	KindChat     Kind = "chat"
	KindNote     Kind = "note"
)

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

type PresencePayload struct {
	Kind         PresenceKind `json:"kind"`
	ConnectionID string       `json:"connectionId"`
	DisplayName  string       `json:"displayName,omitempty"`
}

type ChatPayload struct {
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

// Message is broadcast within a room. Exactly one payload is set, the one
// matching Kind. ServerTimestampMs and Seq are assigned at fan-out.
type Message struct {
	ID                string
	Kind              Kind
	RoomID            string
	OriginID          string
	Seq               uint64
	ServerTimestampMs int64

	Presence *PresencePayload
	Chat     *ChatPayload
	Note     *NoteEvent
}
