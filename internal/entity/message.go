package entity

import (
	"strings"
	"time"
)

type Origin string

const (
	OriginUser      Origin = "USER"
	OriginAssistant Origin = "ASSISTANT"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "PENDING"
	StatusSent    MessageStatus = "SENT"
	StatusRead    MessageStatus = "READ"
	StatusFailed  MessageStatus = "FAILED"
)

var messageStatusRank = map[MessageStatus]int{
	StatusPending: 0,
	StatusSent:    1,
	StatusRead:    2,
	StatusFailed:  1,
}

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) IsValid() bool {
	_, ok := messageStatusRank[s]
	return ok
}

// CanTransition reports whether a delivery update may move a message from s to next.
// FAILED -> PENDING is only reachable through an explicit retry, see CanRetry.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusFailed
	case StatusSent:
		return next == StatusRead
	default:
		return false
	}
}

func (s MessageStatus) CanRetry() bool {
	return s == StatusFailed
}

// DeliveryPredecessor is the only status a delivery update may start from to
// reach s. PENDING has none: it is entered on creation or by an explicit retry.
func (s MessageStatus) DeliveryPredecessor() (MessageStatus, bool) {
	switch s {
	case StatusSent, StatusFailed:
		return StatusPending, true
	case StatusRead:
		return StatusSent, true
	default:
		return "", false
	}
}

// MessageBody is either free text or a rich payload. Both may be set for
// assistant replies that carry a caption.
type MessageBody struct {
	Text    string      `json:"text,omitempty"`
	Payload RichPayload `json:"-"`
}

func (b MessageBody) IsEmpty() bool {
	return strings.TrimSpace(b.Text) == "" && b.Payload == nil
}

type Message struct {
	ID          string        `json:"id"`
	Origin      Origin        `json:"origin"`
	Body        MessageBody   `json:"body"`
	CreatedAt   time.Time     `json:"created_at"`
	Status      MessageStatus `json:"status"`
	ReplyTo     string        `json:"reply_to,omitempty"`
	Provisional bool          `json:"provisional"`
	Note        string        `json:"note,omitempty"`
}

// Before orders messages by creation time, falling back to id for equal timestamps.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

func NewUserMessage(id, text string, now time.Time) Message {
	return Message{
		ID:        id,
		Origin:    OriginUser,
		Body:      MessageBody{Text: text},
		CreatedAt: now,
		Status:    StatusPending,
	}
}

func NewAssistantMessage(id, replyTo string, body MessageBody, now time.Time) Message {
	return Message{
		ID:        id,
		Origin:    OriginAssistant,
		Body:      body,
		CreatedAt: now,
		Status:    StatusSent,
		ReplyTo:   replyTo,
	}
}
