package chatRepository

import (
	"FinChat/internal/api/chat"
	"FinChat/internal/entity"
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

type memoryState struct {
	mu       sync.RWMutex
	messages map[string]entity.Message
	queue    map[string]entity.QueueEntry
}

type memoryRepository struct {
	state *memoryState
	log   *logrus.Logger
}

// NewMemory keeps everything in process. Writes apply immediately, so Commit
// and Rollback are no-ops; use it for tests and throwaway sessions only.
func NewMemory(log *logrus.Logger) Repository {
	return &memoryRepository{
		state: &memoryState{
			messages: make(map[string]entity.Message),
			queue:    make(map[string]entity.QueueEntry),
		},
		log: log,
	}
}

func (r *memoryRepository) NewClient(_ bool) (Client, error) {
	noop := func() error { return nil }
	return Client{
		Messages: &memoryMessages{s: r.state},
		Queue:    &memoryQueue{s: r.state},
		Commit:   noop,
		Rollback: noop,
	}, nil
}

type memoryMessages struct {
	s *memoryState
}

func (m *memoryMessages) Append(_ context.Context, msg entity.Message) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.messages[msg.ID]; exists {
		return chat.ErrStoreMessage
	}
	m.s.messages[msg.ID] = msg
	return nil
}

func (m *memoryMessages) UpdateStatus(_ context.Context, id string, status entity.MessageStatus) (bool, error) {
	from, ok := status.DeliveryPredecessor()
	if !ok {
		return false, nil
	}
	return m.move(id, from, status), nil
}

func (m *memoryMessages) Retry(_ context.Context, id string) (bool, error) {
	return m.move(id, entity.StatusFailed, entity.StatusPending), nil
}

func (m *memoryMessages) move(id string, from, to entity.MessageStatus) bool {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	msg, ok := m.s.messages[id]
	if !ok || msg.Status != from {
		return false
	}
	msg.Status = to
	m.s.messages[id] = msg
	return true
}

func (m *memoryMessages) Replace(_ context.Context, id string, msg entity.Message) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	old, ok := m.s.messages[id]
	if !ok {
		return chat.ErrMessageNotFound
	}
	msg.ID = id
	msg.CreatedAt = old.CreatedAt
	m.s.messages[id] = msg
	return nil
}

func (m *memoryMessages) Get(_ context.Context, id string) (entity.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	msg, ok := m.s.messages[id]
	if !ok {
		return entity.Message{}, chat.ErrMessageNotFound
	}
	return msg, nil
}

func (m *memoryMessages) FindReply(_ context.Context, replyTo string) (entity.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var (
		found entity.Message
		ok    bool
	)
	for _, msg := range m.s.messages {
		if msg.ReplyTo != replyTo || msg.Origin != entity.OriginAssistant || !msg.Provisional {
			continue
		}
		if !ok || msg.Before(found) {
			found, ok = msg, true
		}
	}
	if !ok {
		return entity.Message{}, chat.ErrMessageNotFound
	}
	return found, nil
}

func (m *memoryMessages) LoadAll(_ context.Context) ([]entity.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	out := make([]entity.Message, 0, len(m.s.messages))
	for _, msg := range m.s.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *memoryMessages) Clear(_ context.Context) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.messages = make(map[string]entity.Message)
	return nil
}

type memoryQueue struct {
	s *memoryState
}

func (q *memoryQueue) Enqueue(_ context.Context, entry entity.QueueEntry) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	if old, ok := q.s.queue[entry.CorrelationID]; ok {
		old.Action = entry.Action
		q.s.queue[entry.CorrelationID] = old
		return nil
	}
	q.s.queue[entry.CorrelationID] = entry
	return nil
}

func (q *memoryQueue) Head(ctx context.Context) (entity.QueueEntry, error) {
	entries, _ := q.List(ctx)
	if len(entries) == 0 {
		return entity.QueueEntry{}, chat.ErrQueueEntryMissing
	}
	return entries[0], nil
}

func (q *memoryQueue) Get(_ context.Context, correlationID string) (entity.QueueEntry, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	entry, ok := q.s.queue[correlationID]
	if !ok {
		return entity.QueueEntry{}, chat.ErrQueueEntryMissing
	}
	return entry, nil
}

func (q *memoryQueue) List(_ context.Context) ([]entity.QueueEntry, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	out := make([]entity.QueueEntry, 0, len(q.s.queue))
	for _, e := range q.s.queue {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out, nil
}

func (q *memoryQueue) RecordAttempt(_ context.Context, correlationID, lastError string) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	entry, ok := q.s.queue[correlationID]
	if !ok {
		return nil
	}
	entry.Attempts++
	entry.LastError = lastError
	q.s.queue[correlationID] = entry
	return nil
}

func (q *memoryQueue) Remove(_ context.Context, correlationID string) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	delete(q.s.queue, correlationID)
	return nil
}

func (q *memoryQueue) Size(_ context.Context) (int, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	return len(q.s.queue), nil
}

func (q *memoryQueue) Clear(_ context.Context) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	q.s.queue = make(map[string]entity.QueueEntry)
	return nil
}
