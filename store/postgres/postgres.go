package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zlnvch/sketchrelay/models"
	"github.com/zlnvch/sketchrelay/store"
)

const maxHistory = 200

// querier is the part of pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PostgresRelayStore struct {
	db querier
}

func NewPostgresRelayStore(pool *pgxpool.Pool) *PostgresRelayStore {
	return &PostgresRelayStore{db: pool}
}

func (s *PostgresRelayStore) WriteChatBatch(ctx context.Context, messages []models.ChatMessage) ([]models.ChatMessage, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(insertChatQuery, m.Id, m.RoomId, m.SenderId, m.SenderName, m.Text, m.SentAt)
	}

	// A batch runs in one implicit transaction: any failure rolls back every
	// row, so the whole batch is reported unprocessed. Inserts are idempotent.
	results := s.db.SendBatch(ctx, batch)

	var batchErr error
	for _, m := range messages {
		if _, err := results.Exec(); err != nil {
			batchErr = fmt.Errorf("insert chat message %s: %w", m.Id, err)
			break
		}
	}
	if err := results.Close(); err != nil && batchErr == nil {
		batchErr = fmt.Errorf("chat batch: %w", err)
	}

	if batchErr != nil {
		return messages, batchErr
	}
	return nil, nil
}

func (s *PostgresRelayStore) GetChatHistory(ctx context.Context, roomId string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	rows, err := s.db.Query(ctx, chatHistoryQuery, roomId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Id, &m.RoomId, &m.SenderId, &m.SenderName, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		messages = append(messages, newestFirst[i])
	}
	return messages, nil
}

func (s *PostgresRelayStore) SaveCanvas(ctx context.Context, snapshot models.CanvasSnapshot) (int, error) {
	updatedAt := time.Now()
	if snapshot.UpdatedAt != 0 {
		updatedAt = time.UnixMilli(snapshot.UpdatedAt)
	}

	var appState []byte
	if len(snapshot.AppState) > 0 {
		appState = snapshot.AppState
	}

	var version int
	err := s.db.QueryRow(ctx, saveCanvasQuery,
		snapshot.RoomId, []byte(snapshot.Elements), appState, snapshot.UpdatedBy, updatedAt,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("save canvas: %w", err)
	}
	return version, nil
}

func (s *PostgresRelayStore) GetCanvas(ctx context.Context, roomId string) (models.CanvasSnapshot, error) {
	var (
		snapshot  models.CanvasSnapshot
		elements  []byte
		appState  []byte
		updatedAt time.Time
	)
	err := s.db.QueryRow(ctx, getCanvasQuery, roomId).Scan(
		&snapshot.RoomId, &elements, &appState, &snapshot.Version, &snapshot.UpdatedBy, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CanvasSnapshot{}, store.ErrItemNotFound
		}
		return models.CanvasSnapshot{}, err
	}

	snapshot.Elements = elements
	snapshot.AppState = appState
	snapshot.UpdatedAt = updatedAt.UnixMilli()
	return snapshot, nil
}

func (s *PostgresRelayStore) IncrementRoomMessageCount(ctx context.Context, roomId string, count int) error {
	_, err := s.db.Exec(ctx, incrementMessageCountQuery, roomId, count)
	return err
}

// EnsureSchema creates the relay tables if they are missing.
func (s *PostgresRelayStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
