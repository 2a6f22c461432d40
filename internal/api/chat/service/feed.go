package chatService

import (
	"FinChat/internal/api/chat"
	"FinChat/internal/entity"
	"sync"

	"github.com/sirupsen/logrus"
)

const feedBuffer = 64

// feed fans stored messages out to rendering subscribers. A subscriber that
// falls behind loses events instead of stalling the pipeline; it can reload
// the history to catch up.
type feed struct {
	log *logrus.Logger

	mu     sync.RWMutex
	subs   map[int]chan chat.StreamEvent
	nextID int
}

func newFeed(log *logrus.Logger) *feed {
	return &feed{
		log:  log,
		subs: make(map[int]chan chat.StreamEvent),
	}
}

func (f *feed) subscribe() (<-chan chat.StreamEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan chat.StreamEvent, feedBuffer)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			delete(f.subs, id)
			close(ch)
		})
	}
}

func (f *feed) publishMessage(msg entity.Message) {
	f.publish(chat.StreamEvent{Type: chat.StreamEventMessage, Message: &msg})
}

func (f *feed) publishReset() {
	f.publish(chat.StreamEvent{Type: chat.StreamEventReset})
}

func (f *feed) publish(ev chat.StreamEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.log.WithFields(logrus.Fields{
				"subscriber": id,
				"event":      ev.Type,
			}).Warn("Stream subscriber is behind, event dropped")
		}
	}
}
