package protocol

import (
	"github.com/jsphweid/harmonyjam/model"
	"github.com/pkg/errors"
)

type ClientFrameType string

const (
	Join     ClientFrameType = "join"
	Leave    ClientFrameType = "leave"
	PlayNote ClientFrameType = "playNote"
	SendChat ClientFrameType = "sendChat"
)

// ClientFrame is a client to server message.
type ClientFrame struct {
	Type        ClientFrameType  `json:"type"`
	RoomID      string           `json:"roomId"`
	DisplayName string           `json:"displayName,omitempty"`
	Text        string           `json:"text,omitempty"`
	Note        *model.NoteEvent `json:"note,omitempty"`
}

func (f ClientFrame) Validate() error {
	if f.RoomID == "" {
		return errors.Errorf("%s frame without roomId", f.Type)
	}
	switch f.Type {
	case Join, Leave:
	case PlayNote:
		if f.Note == nil {
			return errors.New("playNote frame without note")
		}
	case SendChat:
		if f.Text == "" {
			return errors.New("sendChat frame without text")
		}
	default:
		return errors.Errorf("unknown client frame type %q", f.Type)
	}
	return nil
}

type ServerFrameType string

const (
	Welcome      ServerFrameType = "welcome"
	Presence     ServerFrameType = "presence"
	NotePlayed   ServerFrameType = "notePlayed"
	ChatReceived ServerFrameType = "chatReceived"
)

// ServerFrame is a server to client message. Welcome carries only the
// recipient's ConnectionID; the others mirror a model.Message.
type ServerFrame struct {
	Type              ServerFrameType    `json:"type"`
	ID                string             `json:"id,omitempty"`
	RoomID            string             `json:"roomId,omitempty"`
	ConnectionID      string             `json:"connectionId"`
	Kind              model.PresenceKind `json:"kind,omitempty"`
	DisplayName       string             `json:"displayName,omitempty"`
	Text              string             `json:"text,omitempty"`
	Note              *model.NoteEvent   `json:"note,omitempty"`
	Seq               uint64             `json:"seq,omitempty"`
	ServerTimestampMs int64              `json:"serverTimestampMs,omitempty"`
}

func WelcomeFrame(connID string) ServerFrame {
	return ServerFrame{Type: Welcome, ConnectionID: connID}
}

// FromMessage encodes a room Message for the wire.
func FromMessage(msg model.Message) ServerFrame {
	f := ServerFrame{
		ID:                msg.ID,
		RoomID:            msg.RoomID,
		ConnectionID:      msg.OriginID,
		Seq:               msg.Seq,
		ServerTimestampMs: msg.ServerTimestampMs,
	}
	switch msg.Kind {
	case model.KindPresence:
		f.Type = Presence
		f.Kind = msg.Presence.Kind
		f.ConnectionID = msg.Presence.ConnectionID
		f.DisplayName = msg.Presence.DisplayName
	case model.KindNote:
		f.Type = NotePlayed
		f.Note = msg.Note
	case model.KindChat:
		f.Type = ChatReceived
		f.DisplayName = msg.Chat.DisplayName
		f.Text = msg.Chat.Text
	}
	return f
}

// Message decodes a room frame. Welcome frames are not room messages and
// return an error, as do frames missing their payload.
func (f ServerFrame) Message() (model.Message, error) {
	msg := model.Message{
		ID:                f.ID,
		RoomID:            f.RoomID,
		Seq:               f.Seq,
		ServerTimestampMs: f.ServerTimestampMs,
	}
	switch f.Type {
	case Presence:
		if f.Kind != model.PresenceJoined && f.Kind != model.PresenceLeft {
			return msg, errors.Errorf("unknown presence kind %q", f.Kind)
		}
		msg.Kind = model.KindPresence
		msg.Presence = &model.PresencePayload{
			Kind:         f.Kind,
			ConnectionID: f.ConnectionID,
			DisplayName:  f.DisplayName,
		}
	case NotePlayed:
		if f.Note == nil {
			return msg, errors.New("notePlayed frame without note")
		}
		msg.Kind = model.KindNote
		msg.OriginID = f.ConnectionID
		msg.Note = f.Note
	case ChatReceived:
		msg.Kind = model.KindChat
		msg.OriginID = f.ConnectionID
		msg.Chat = &model.ChatPayload{DisplayName: f.DisplayName, Text: f.Text}
	default:
		return msg, errors.Errorf("frame type %q is not a room message", f.Type)
	}
	return msg, nil
}
