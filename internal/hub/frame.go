package hub

import (
	"encoding/json"
)

// Events emitted by the message service.
const (
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
)

// Events sent by clients.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventJoinUserRoom = "join_user_room"
)

// Replies to client events.
const (
	EventAck   = "ack"
	EventError = "error"
)

// Frame is the JSON envelope exchanged over the websocket in both directions.
type Frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
	Error string          `json:"error,omitempty"`
}

func encodeFrame(room, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Room: room, Data: data})
}

// roomArg extracts the room name of a client event. Both a bare string and
// {"room": "..."} are accepted.
func (f Frame) roomArg() (string, bool) {
	var room string
	if err := json.Unmarshal(f.Data, &room); err == nil {
		return room, true
	}
	var obj struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(f.Data, &obj); err == nil && obj.Room != "" {
		return obj.Room, true
	}
	return "", false
}
