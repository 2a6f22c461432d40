package chatRepository

// Statements run on both SQLite and PostgreSQL, so they stick to the common
// subset: TEXT ids, BIGINT unix-nano timestamps and ON CONFLICT upserts.
var schema = []string{
	`
		CREATE TABLE IF NOT EXISTS chat_messages (
			id          TEXT PRIMARY KEY,
			origin      TEXT NOT NULL,
			body_text   TEXT NOT NULL DEFAULT '',
			payload     TEXT NOT NULL DEFAULT '',
			created_at  BIGINT NOT NULL,
			status      TEXT NOT NULL,
			reply_to    TEXT NOT NULL DEFAULT '',
			provisional BOOLEAN NOT NULL DEFAULT FALSE,
			note        TEXT NOT NULL DEFAULT ''
		)
	`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_order ON chat_messages (created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_reply_to ON chat_messages (reply_to)`,
	`
		CREATE TABLE IF NOT EXISTS offline_queue (
			correlation_id TEXT PRIMARY KEY,
			endpoint       TEXT NOT NULL,
			method         TEXT NOT NULL,
			body           TEXT NOT NULL DEFAULT '',
			enqueued_at    BIGINT NOT NULL,
			attempts       INTEGER NOT NULL DEFAULT 0,
			last_error     TEXT NOT NULL DEFAULT ''
		)
	`,
	`CREATE INDEX IF NOT EXISTS idx_offline_queue_order ON offline_queue (enqueued_at, correlation_id)`,
}

const (
	queryAppendMessage = `
		INSERT INTO chat_messages (
			id,
			origin,
			body_text,
			payload,
			created_at,
			status,
			reply_to,
			provisional,
			note
		) VALUES (
			:id,
			:origin,
			:body_text,
			:payload,
			:created_at,
			:status,
			:reply_to,
			:provisional,
			:note
		)
	`

	queryUpdateMessageStatus = `
		UPDATE chat_messages
		SET status = :status
		WHERE id = :id AND status = :from_status
	`

	queryReplaceMessage = `
		UPDATE chat_messages
		SET
			origin = :origin,
			body_text = :body_text,
			payload = :payload,
			status = :status,
			reply_to = :reply_to,
			provisional = :provisional,
			note = :note
		WHERE id = :id
	`

	queryGetMessageByID = `
		SELECT
			id,
			origin,
			body_text,
			payload,
			created_at,
			status,
			reply_to,
			provisional,
			note
		FROM chat_messages
		WHERE id = :id
	`

	queryFindReply = `
		SELECT
			id,
			origin,
			body_text,
			payload,
			created_at,
			status,
			reply_to,
			provisional,
			note
		FROM chat_messages
		WHERE reply_to = :reply_to AND origin = :origin AND provisional = :provisional
		ORDER BY created_at, id
		LIMIT 1
	`

	queryLoadAllMessages = `
		SELECT
			id,
			origin,
			body_text,
			payload,
			created_at,
			status,
			reply_to,
			provisional,
			note
		FROM chat_messages
		ORDER BY created_at, id
	`

	queryClearMessages = `DELETE FROM chat_messages`

	queryEnqueueAction = `
		INSERT INTO offline_queue (
			correlation_id,
			endpoint,
			method,
			body,
			enqueued_at,
			attempts,
			last_error
		) VALUES (
			:correlation_id,
			:endpoint,
			:method,
			:body,
			:enqueued_at,
			:attempts,
			:last_error
		)
		ON CONFLICT (correlation_id) DO UPDATE SET
			endpoint = excluded.endpoint,
			method = excluded.method,
			body = excluded.body
	`

	queryQueueHead = `
		SELECT
			correlation_id,
			endpoint,
			method,
			body,
			enqueued_at,
			attempts,
			last_error
		FROM offline_queue
		ORDER BY enqueued_at, correlation_id
		LIMIT 1
	`

	queryGetQueueEntry = `
		SELECT
			correlation_id,
			endpoint,
			method,
			body,
			enqueued_at,
			attempts,
			last_error
		FROM offline_queue
		WHERE correlation_id = :correlation_id
	`

	queryListQueue = `
		SELECT
			correlation_id,
			endpoint,
			method,
			body,
			enqueued_at,
			attempts,
			last_error
		FROM offline_queue
		ORDER BY enqueued_at, correlation_id
	`

	queryRecordAttempt = `
		UPDATE offline_queue
		SET attempts = attempts + 1, last_error = :last_error
		WHERE correlation_id = :correlation_id
	`

	queryRemoveQueueEntry = `DELETE FROM offline_queue WHERE correlation_id = :correlation_id`

	queryCountQueue = `SELECT COUNT(*) FROM offline_queue`

	queryClearQueue = `DELETE FROM offline_queue`
)
