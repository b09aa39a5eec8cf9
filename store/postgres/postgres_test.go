package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/sketchrelay/models"
)

// fakeBatchResults fails the Exec at failAt (zero-based); -1 never fails.
type fakeBatchResults struct {
	pgx.BatchResults
	failAt   int
	closeErr error
	execs    int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	i := r.execs
	r.execs++
	if i == r.failAt {
		return pgconn.CommandTag{}, errors.New("invalid byte sequence for encoding \"UTF8\": 0x00")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Close() error { return r.closeErr }

type fakeQuerier struct {
	querier
	results *fakeBatchResults
	queued  int
}

func (q *fakeQuerier) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	q.queued = b.Len()
	return q.results
}

func chatBatch(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, n)
	for i := range n {
		out = append(out, models.ChatMessage{
			Id:     "m" + string(rune('a'+i)),
			RoomId: "room-42",
			Text:   "hi",
			SentAt: time.UnixMilli(int64(i)),
		})
	}
	return out
}

func TestWriteChatBatch_AllWritten(t *testing.T) {
	q := &fakeQuerier{results: &fakeBatchResults{failAt: -1}}
	s := &PostgresRelayStore{db: q}

	unprocessed, err := s.WriteChatBatch(context.Background(), chatBatch(3))
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
	assert.Equal(t, 3, q.queued)
}

func TestWriteChatBatch_OneFailureReturnsWholeBatch(t *testing.T) {
	q := &fakeQuerier{results: &fakeBatchResults{failAt: 2}}
	s := &PostgresRelayStore{db: q}
	batch := chatBatch(5)

	unprocessed, err := s.WriteChatBatch(context.Background(), batch)
	require.Error(t, err)
	assert.Equal(t, batch, unprocessed)
	assert.Equal(t, 3, q.results.execs)
}

func TestWriteChatBatch_CloseErrorReturnsWholeBatch(t *testing.T) {
	q := &fakeQuerier{results: &fakeBatchResults{failAt: -1, closeErr: errors.New("commit failed")}}
	s := &PostgresRelayStore{db: q}
	batch := chatBatch(2)

	unprocessed, err := s.WriteChatBatch(context.Background(), batch)
	require.Error(t, err)
	assert.Equal(t, batch, unprocessed)
}

func TestWriteChatBatch_Empty(t *testing.T) {
	s := &PostgresRelayStore{db: &fakeQuerier{}}

	unprocessed, err := s.WriteChatBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, unprocessed)
}
