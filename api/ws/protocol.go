package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zlnvch/sketchrelay/models"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError is a malformed inbound message. Its text is what the sender
// sees in the error reply.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return e.Reason }

func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

func malformed(reason string) error {
	return &DecodeError{Reason: reason}
}

// Inbound event types
const (
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeCursorMove    = "cursor_move"
	TypeCanvasUpdate  = "canvas_update"
	TypeElementAdd    = "element_add"
	TypeElementUpdate = "element_update"
	TypeElementDelete = "element_delete"
	TypeChat          = "chat"
	TypePing          = "ping"
)

// Outbound-only event types
const (
	TypeConnected       = "connected"
	TypeRoomPresence    = "room_presence"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeCursorUpdate    = "cursor_update"
	TypePong            = "pong"
	TypeError           = "error"
	TypeRoomClosed      = "room_closed"
	TypeRemovedFromRoom = "removed_from_room"
)

// Event is one decoded client message. The set of implementations is closed.
type Event interface {
	eventType() string
}

type JoinRoom struct{ RoomId string }

type LeaveRoom struct{ RoomId string }

type CursorMove struct {
	RoomId string
	X, Y   float64
}

type CanvasUpdate struct {
	RoomId   string
	Elements json.RawMessage
	AppState json.RawMessage
	Save     bool
}

type ElementAdd struct {
	RoomId  string
	Element json.RawMessage
}

type ElementUpdate struct {
	RoomId  string
	Element json.RawMessage
}

type ElementDelete struct {
	RoomId    string
	ElementId string
}

type Chat struct {
	RoomId string
	Text   string
}

type Ping struct{}

func (JoinRoom) eventType() string      { return TypeJoinRoom }
func (LeaveRoom) eventType() string     { return TypeLeaveRoom }
func (CursorMove) eventType() string    { return TypeCursorMove }
func (CanvasUpdate) eventType() string  { return TypeCanvasUpdate }
func (ElementAdd) eventType() string    { return TypeElementAdd }
func (ElementUpdate) eventType() string { return TypeElementUpdate }
func (ElementDelete) eventType() string { return TypeElementDelete }
func (Chat) eventType() string          { return TypeChat }
func (Ping) eventType() string          { return TypePing }

// roomScoped is implemented by every event that targets one room.
type roomScoped interface {
	room() string
}

func (e JoinRoom) room() string      { return e.RoomId }
func (e LeaveRoom) room() string     { return e.RoomId }
func (e CursorMove) room() string    { return e.RoomId }
func (e CanvasUpdate) room() string  { return e.RoomId }
func (e ElementAdd) room() string    { return e.RoomId }
func (e ElementUpdate) room() string { return e.RoomId }
func (e ElementDelete) room() string { return e.RoomId }
func (e Chat) room() string          { return e.RoomId }

type envelope struct {
	Type      string          `json:"type"`
	RoomId    json.RawMessage `json:"roomId"`
	X         *float64        `json:"x"`
	Y         *float64        `json:"y"`
	Elements  json.RawMessage `json:"elements"`
	AppState  json.RawMessage `json:"appState"`
	Save      bool            `json:"save"`
	Element   json.RawMessage `json:"element"`
	ElementId json.RawMessage `json:"elementId"`
	Message   *string         `json:"message"`
}

// Decode parses one client message. Unknown fields are ignored.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("Invalid JSON format")
	}

	if env.Type == "" {
		return nil, malformed("missing type")
	}

	if env.Type == TypePing {
		return Ping{}, nil
	}

	switch env.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeCursorMove, TypeCanvasUpdate,
		TypeElementAdd, TypeElementUpdate, TypeElementDelete, TypeChat:
	default:
		return nil, ErrUnknownType
	}

	roomId, ok := idString(env.RoomId)
	if !ok {
		return nil, malformed("missing roomId")
	}

	switch env.Type {
	case TypeJoinRoom:
		return JoinRoom{RoomId: roomId}, nil

	case TypeLeaveRoom:
		return LeaveRoom{RoomId: roomId}, nil

	case TypeCursorMove:
		if env.X == nil || env.Y == nil {
			return nil, malformed("cursor_move requires numeric x and y")
		}
		return CursorMove{RoomId: roomId, X: *env.X, Y: *env.Y}, nil

	case TypeCanvasUpdate:
		if !isArray(env.Elements) {
			return nil, malformed("canvas_update requires an elements array")
		}
		return CanvasUpdate{RoomId: roomId, Elements: env.Elements, AppState: nonNull(env.AppState), Save: env.Save}, nil

	case TypeElementAdd, TypeElementUpdate:
		element := nonNull(env.Element)
		if element == nil {
			return nil, malformed(env.Type + " requires an element")
		}
		if env.Type == TypeElementAdd {
			return ElementAdd{RoomId: roomId, Element: element}, nil
		}
		return ElementUpdate{RoomId: roomId, Element: element}, nil

	case TypeElementDelete:
		elementId, ok := idString(env.ElementId)
		if !ok {
			return nil, malformed("element_delete requires an elementId")
		}
		return ElementDelete{RoomId: roomId, ElementId: elementId}, nil

	default:
		if env.Message == nil || strings.TrimSpace(*env.Message) == "" {
			return nil, malformed("chat requires a non-empty message")
		}
		if strings.ContainsRune(*env.Message, 0) {
			return nil, malformed("chat message contains a NUL character")
		}
		return Chat{RoomId: roomId, Text: strings.TrimSpace(*env.Message)}, nil
	}
}

// idString accepts a JSON string or number and returns it as text.
func idString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func nonNull(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}

// Outbound messages

type connectedMessage struct {
	Type          string `json:"type"`
	ParticipantId string `json:"participantId"`
	ConnectionId  string `json:"connectionId"`
	DisplayName   string `json:"displayName"`
	CursorColor   string `json:"cursorColor"`
}

type presenceMessage struct {
	Type    string                  `json:"type"`
	RoomId  string                  `json:"roomId"`
	Members []models.PresenceMember `json:"members"`
}

type memberMessage struct {
	Type         string `json:"type"`
	RoomId       string `json:"roomId"`
	Id           string `json:"id"`
	ConnectionId string `json:"connectionId"`
	Name         string `json:"name"`
	Color        string `json:"color"`
}

type cursorMessage struct {
	Type         string  `json:"type"`
	RoomId       string  `json:"roomId"`
	Id           string  `json:"id"`
	ConnectionId string  `json:"connectionId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Color        string  `json:"color"`
}

type canvasMessage struct {
	Type     string          `json:"type"`
	RoomId   string          `json:"roomId"`
	Id       string          `json:"id"`
	Elements json.RawMessage `json:"elements"`
	AppState json.RawMessage `json:"appState,omitempty"`
}

type elementMessage struct {
	Type      string          `json:"type"`
	RoomId    string          `json:"roomId"`
	Id        string          `json:"id"`
	Element   json.RawMessage `json:"element,omitempty"`
	ElementId string          `json:"elementId,omitempty"`
}

type chatMessage struct {
	Type       string    `json:"type"`
	RoomId     string    `json:"roomId"`
	Id         string    `json:"id"`
	SenderId   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

type roomMessage struct {
	Type   string `json:"type"`
	RoomId string `json:"roomId"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMessage struct {
	Type string `json:"type"`
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode outbound message", "err", err)
		return nil
	}
	return data
}

func encodeError(message string) []byte {
	return encode(errorMessage{Type: TypeError, Message: message})
}
