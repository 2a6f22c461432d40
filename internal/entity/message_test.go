package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from MessageStatus
		to   MessageStatus
		want bool
	}{
		{StatusPending, StatusSent, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusRead, false},
		{StatusSent, StatusRead, true},
		{StatusSent, StatusPending, false},
		{StatusSent, StatusFailed, false},
		{StatusRead, StatusSent, false},
		{StatusRead, StatusPending, false},
		{StatusFailed, StatusPending, false},
		{StatusFailed, StatusSent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestMessageStatus_DeliveryPredecessor(t *testing.T) {
	from, ok := StatusSent.DeliveryPredecessor()
	assert.True(t, ok)
	assert.Equal(t, StatusPending, from)

	from, ok = StatusFailed.DeliveryPredecessor()
	assert.True(t, ok)
	assert.Equal(t, StatusPending, from)

	from, ok = StatusRead.DeliveryPredecessor()
	assert.True(t, ok)
	assert.Equal(t, StatusSent, from)

	_, ok = StatusPending.DeliveryPredecessor()
	assert.False(t, ok)

	_, ok = MessageStatus("ARCHIVED").DeliveryPredecessor()
	assert.False(t, ok)
}

func TestMessageStatus_Retry(t *testing.T) {
	assert.True(t, StatusFailed.CanRetry())
	assert.False(t, StatusPending.CanRetry())
	assert.False(t, StatusSent.CanRetry())
	assert.False(t, MessageStatus("bogus").IsValid())
	assert.True(t, StatusRead.IsValid())
}

func TestMessage_Before(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	a := Message{ID: "01A", CreatedAt: t0}
	b := Message{ID: "01B", CreatedAt: t0}
	c := Message{ID: "00Z", CreatedAt: t0.Add(time.Millisecond)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
}

func TestNewMessages(t *testing.T) {
	now := time.Now()

	user := NewUserMessage("u1", "oi", now)
	assert.Equal(t, OriginUser, user.Origin)
	assert.Equal(t, StatusPending, user.Status)
	assert.False(t, user.Provisional)

	reply := NewAssistantMessage("a1", "u1", MessageBody{Text: "olá"}, now)
	assert.Equal(t, OriginAssistant, reply.Origin)
	assert.Equal(t, StatusSent, reply.Status)
	assert.Equal(t, "u1", reply.ReplyTo)

	assert.True(t, MessageBody{Text: "  "}.IsEmpty())
	assert.False(t, MessageBody{Payload: MenuPayload{}}.IsEmpty())
}
