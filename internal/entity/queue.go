package entity

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// SendAction describes the remote request a queue entry replays. The core never
// looks inside Body; it is handed to the sender as-is.
type SendAction struct {
	Endpoint string              `json:"endpoint" validate:"required"`
	Method   string              `json:"method" validate:"required,oneof=POST PUT PATCH DELETE"`
	Body     jsoniter.RawMessage `json:"body"`
}

// QueueEntry is a pending mutating request keyed by the id of the message that
// produced it. The correlation id doubles as the server-side idempotency key.
type QueueEntry struct {
	CorrelationID string     `json:"correlation_id" validate:"required"`
	Action        SendAction `json:"action"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
}

// SendResult is what the remote assistant returned for one accepted action.
type SendResult struct {
	Replies []MessageBody `json:"replies"`
	Read    bool          `json:"read"`
}
