package roomapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zlnvch/sketchrelay/models"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrRoomNotFound = errors.New("room not found")

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration

	// Client credentials are optional; without them requests are anonymous
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Client reads room records from the room-management API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("room directory base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid room directory url: %w", err)
	}

	httpClient := &http.Client{}
	if cfg.ClientID != "" {
		conf := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = conf.Client(ctx)
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}, nil
}

type roomResponse struct {
	Room roomRecord `json:"room"`
}

// The directory keys rooms by integer id; older deployments used strings.
type roomRecord struct {
	Id       json.RawMessage     `json:"id"`
	Slug     string              `json:"slug"`
	IsPublic bool                `json:"isPublic"`
	AdminId  string              `json:"adminId"`
	Members  []models.RoomMember `json:"members"`
}

func (r roomRecord) info() models.RoomInfo {
	return models.RoomInfo{
		Id:       idString(r.Id),
		Slug:     r.Slug,
		IsPublic: r.IsPublic,
		AdminId:  r.AdminId,
		Members:  r.Members,
	}
}

func idString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (c *Client) GetRoom(ctx context.Context, roomId string) (models.RoomInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/room/"+url.PathEscape(roomId), nil)
	if err != nil {
		return models.RoomInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RoomInfo{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.RoomInfo{}, ErrRoomNotFound
	case resp.StatusCode != http.StatusOK:
		return models.RoomInfo{}, fmt.Errorf("room directory returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.RoomInfo{}, err
	}

	var parsed roomResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.RoomInfo{}, fmt.Errorf("decode room: %w", err)
	}
	room := parsed.Room.info()
	if room.Id == "" {
		room.Id = roomId
	}

	return room, nil
}
