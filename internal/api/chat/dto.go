package chat

import (
	"FinChat/internal/entity"
	"time"
)

type SubmitMessageRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

type MessageListResponse struct {
	Messages []entity.Message `json:"messages"`
	Total    int              `json:"total"`
}

type QueueEntryResponse struct {
	CorrelationID string    `json:"correlation_id"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
}

type QueueResponse struct {
	Size    int                  `json:"size"`
	Entries []QueueEntryResponse `json:"entries"`
}

// FlushReport summarizes one pass over the offline queue.
type FlushReport struct {
	Sent     int  `json:"sent"`
	Rejected int  `json:"rejected"`
	Pending  int  `json:"pending"`
	Stopped  bool `json:"stopped"`
	Skipped  bool `json:"skipped"`
}

type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type ConnectivityResponse struct {
	Online bool `json:"online"`
}

type SnapshotAccountRequest struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	Balance  string    `json:"balance" validate:"required,numeric"`
	Currency string    `json:"currency" validate:"omitempty,len=3"`
	SyncedAt time.Time `json:"synced_at"`
}

type SnapshotCardRequest struct {
	ID       string    `json:"id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	Brand    string    `json:"brand"`
	Limit    string    `json:"limit" validate:"required,numeric"`
	Used     string    `json:"used" validate:"required,numeric"`
	SyncedAt time.Time `json:"synced_at"`
}

type ReplaceSnapshotRequest struct {
	Accounts []SnapshotAccountRequest `json:"accounts" validate:"dive"`
	Cards    []SnapshotCardRequest    `json:"cards" validate:"dive"`
}

type StreamEvent struct {
	Type     string           `json:"type"`
	Message  *entity.Message  `json:"message,omitempty"`
	Messages []entity.Message `json:"messages,omitempty"`
}

const (
	StreamEventHistory = "history"
	StreamEventMessage = "message"
	StreamEventReset   = "reset"
)
