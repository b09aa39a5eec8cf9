package models

import (
	"encoding/json"
	"time"
)

// Identity is who a connection speaks for. Id is the account id for
// authenticated users and a connection-lifetime guest id otherwise.
type Identity struct {
	Id    string
	Name  string
	Guest bool
}

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ChatMessage struct {
	Id         string    `json:"id"`
	RoomId     string    `json:"roomId"`
	SenderId   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

type CanvasSnapshot struct {
	RoomId    string          `json:"roomId"`
	Elements  json.RawMessage `json:"elements"`
	AppState  json.RawMessage `json:"appState,omitempty"`
	Version   int             `json:"version"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UpdatedAt int64           `json:"updatedAt"`
}

type RoomMember struct {
	UserId string `json:"userId"`
}

// RoomInfo is the subset of the room directory record the relay needs to
// decide whether a participant may join.
type RoomInfo struct {
	Id       string       `json:"id"`
	Slug     string       `json:"slug"`
	IsPublic bool         `json:"isPublic"`
	AdminId  string       `json:"adminId"`
	Members  []RoomMember `json:"members"`
}

func (r RoomInfo) HasMember(userId string) bool {
	if userId == "" {
		return false
	}
	if r.AdminId == userId {
		return true
	}
	for _, m := range r.Members {
		if m.UserId == userId {
			return true
		}
	}
	return false
}

// PresenceMember is one live connection in a room as peers see it.
type PresenceMember struct {
	Id           string  `json:"id"`
	ConnectionId string  `json:"connectionId"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	Cursor       *Cursor `json:"cursor,omitempty"`
}
