package chat

import "FinChat/pkg/response"

var (
	ErrEmptyMessage      = response.NewError(400, "message is empty")
	ErrMessageNotFound   = response.NewError(404, "message not found")
	ErrQueueEntryMissing = response.NewError(404, "queue entry not found")
	ErrNotRetryable      = response.NewError(409, "only failed messages can be retried")
	ErrNotReadable       = response.NewError(409, "only sent messages can be marked as read")
	ErrStoreMessage      = response.NewError(500, "failed to store message")
	ErrLoadHistory       = response.NewError(500, "failed to load message history")
	ErrResetSession      = response.NewError(500, "failed to reset session")
	ErrFlushQueue        = response.NewError(500, "failed to flush offline queue")
	ErrInvalidSnapshot   = response.NewError(400, "invalid snapshot")
)
