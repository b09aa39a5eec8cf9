package postgres

const (
	insertChatQuery = `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, text, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	chatHistoryQuery = `
		SELECT id, room_id, sender_id, sender_name, text, sent_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2`

	saveCanvasQuery = `
		INSERT INTO canvases (room_id, elements, app_state, version, updated_by, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (room_id) DO UPDATE
		SET elements = EXCLUDED.elements,
		    app_state = EXCLUDED.app_state,
		    version = canvases.version + 1,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at
		RETURNING version`

	getCanvasQuery = `
		SELECT room_id, elements, app_state, version, updated_by, updated_at
		FROM canvases
		WHERE room_id = $1`

	incrementMessageCountQuery = `
		INSERT INTO room_stats (room_id, message_count)
		VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE
		SET message_count = room_stats.message_count + EXCLUDED.message_count`
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL,
		sender_id   TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		text        TEXT NOT NULL,
		sent_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_sent_idx ON chat_messages (room_id, sent_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS canvases (
		room_id    TEXT PRIMARY KEY,
		elements   JSONB NOT NULL,
		app_state  JSONB,
		version    INTEGER NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS room_stats (
		room_id       TEXT PRIMARY KEY,
		message_count BIGINT NOT NULL DEFAULT 0
	)`,
}
