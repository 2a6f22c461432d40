package speech

import (
	"errors"
	"sync"
)

var ErrUnavailable = errors.New("speech recognition is not available on this device")

// Callbacks receive the recognizer's asynchronous results. They may arrive on
// any goroutine and are not synchronized with gesture events.
type Callbacks interface {
	OnFinalResult(text string)
	OnEnd()
	OnError(code string)
}

// Recognizer is the platform speech-recognition capability.
type Recognizer interface {
	Available() bool
	// Start begins a continuous stream. Starting a stream that is running and
	// not stopping is a no-op; otherwise a new stream replaces the old one and
	// whatever the old one still reports is dropped.
	Start() error
	// Stop asks the stream to finish; OnEnd follows once it has.
	Stop() error
	// Abandon forgets the current stream without waiting for its end.
	Abandon()
	SetCallbacks(cb Callbacks)
}

const (
	CommandStart = "recognizer.start"
	CommandStop  = "recognizer.stop"
)

// Command asks the UI to start or stop the stream with the given id. The UI
// tags every result, end and error with the id of the stream that produced it.
type Command struct {
	Type   string `json:"type"`
	Stream uint64 `json:"stream"`
}

// Bridge forwards start/stop commands to a recognizer that lives in the UI and
// feeds its results back. The UI declares support once per connection.
type Bridge struct {
	mu        sync.Mutex
	send      func(Command) error
	supported bool
	cb        Callbacks

	// issued is the last stream id handed out; current is the live one, or 0.
	issued   uint64
	current  uint64
	stopping bool
}

func NewBridge(send func(Command) error) *Bridge {
	return &Bridge{send: send}
}

func (b *Bridge) SetSupported(supported bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.supported = supported
}

func (b *Bridge) SetCallbacks(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cb = cb
}

func (b *Bridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.supported && b.send != nil
}

func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current != 0
}

// Current returns the id of the live stream, 0 when there is none.
func (b *Bridge) Current() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current
}

func (b *Bridge) Start() error {
	b.mu.Lock()
	if !b.supported || b.send == nil {
		b.mu.Unlock()
		return ErrUnavailable
	}
	if b.current != 0 && !b.stopping {
		b.mu.Unlock()
		return nil
	}
	b.issued++
	id := b.issued
	b.current = id
	b.stopping = false
	b.mu.Unlock()

	if err := b.send(Command{Type: CommandStart, Stream: id}); err != nil {
		b.mu.Lock()
		if b.current == id {
			b.current = 0
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.current == 0 || b.stopping {
		b.mu.Unlock()
		return nil
	}
	b.stopping = true
	id := b.current
	b.mu.Unlock()

	return b.send(Command{Type: CommandStop, Stream: id})
}

func (b *Bridge) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = 0
	b.stopping = false
}

func (b *Bridge) HandleFinalResult(stream uint64, text string) {
	if cb := b.callbacksFor(stream, false); cb != nil {
		cb.OnFinalResult(text)
	}
}

func (b *Bridge) HandleEnd(stream uint64) {
	if cb := b.callbacksFor(stream, true); cb != nil {
		cb.OnEnd()
	}
}

func (b *Bridge) HandleError(stream uint64, code string) {
	if cb := b.callbacksFor(stream, false); cb != nil {
		cb.OnError(code)
	}
}

// callbacksFor returns nil for reports from any stream but the live one.
func (b *Bridge) callbacksFor(stream uint64, ended bool) Callbacks {
	b.mu.Lock()
	defer b.mu.Unlock()

	if stream == 0 || stream != b.current {
		return nil
	}
	if ended {
		b.current = 0
		b.stopping = false
	}
	return b.cb
}
