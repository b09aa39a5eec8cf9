package dynamo

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/zlnvch/sketchrelay/models"
)

const (
	chatPrefix = "CHAT#"
	roomPrefix = "ROOM#"
	canvasSK   = "CANVAS"
	statsSK    = "STATS"
)

type dynamoChat struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	SenderId   string `dynamodbav:"SenderId"`
	SenderName string `dynamodbav:"SenderName"`
	Text       string `dynamodbav:"Text"`
	SentAt     int64  `dynamodbav:"SentAt"`
}

// Map domain ChatMessage -> Dynamo. SK is the message id; ids are UUIDv7 so
// SK order is send order.
func chatToDynamo(m models.ChatMessage) dynamoChat {
	return dynamoChat{
		PK:         chatPrefix + m.RoomId,
		SK:         m.Id,
		SenderId:   m.SenderId,
		SenderName: m.SenderName,
		Text:       m.Text,
		SentAt:     m.SentAt.UnixMilli(),
	}
}

// Map Dynamo -> domain ChatMessage
func chatFromDynamo(dc dynamoChat) models.ChatMessage {
	return models.ChatMessage{
		Id:         dc.SK,
		RoomId:     strings.TrimPrefix(dc.PK, chatPrefix),
		SenderId:   dc.SenderId,
		SenderName: dc.SenderName,
		Text:       dc.Text,
		SentAt:     time.UnixMilli(dc.SentAt).UTC(),
	}
}

type dynamoCanvas struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Elements  string `dynamodbav:"Elements"`
	AppState  string `dynamodbav:"AppState"`
	Version   int    `dynamodbav:"Version"`
	UpdatedBy string `dynamodbav:"UpdatedBy"`
	UpdatedAt int64  `dynamodbav:"UpdatedAt"`
}

func canvasToDynamo(s models.CanvasSnapshot) dynamoCanvas {
	return dynamoCanvas{
		PK:        roomPrefix + s.RoomId,
		SK:        canvasSK,
		Elements:  string(s.Elements),
		AppState:  string(s.AppState),
		Version:   s.Version,
		UpdatedBy: s.UpdatedBy,
		UpdatedAt: s.UpdatedAt,
	}
}

func canvasFromDynamo(dc dynamoCanvas) models.CanvasSnapshot {
	s := models.CanvasSnapshot{
		RoomId:    strings.TrimPrefix(dc.PK, roomPrefix),
		Elements:  json.RawMessage(dc.Elements),
		Version:   dc.Version,
		UpdatedBy: dc.UpdatedBy,
		UpdatedAt: dc.UpdatedAt,
	}
	if dc.AppState != "" {
		s.AppState = json.RawMessage(dc.AppState)
	}
	return s
}
