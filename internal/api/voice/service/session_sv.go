package voiceService

import (
	"FinChat/internal/api/voice"
	"FinChat/internal/entity"
	contextPkg "FinChat/pkg/context"
	"FinChat/pkg/speech"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NoSpeechError is reported by recognizers when a pause produced no words.
// It does not end the capture.
const NoSpeechError = "no-speech"

// Submitter receives the dictated text once the capture is over.
type Submitter interface {
	Submit(ctx context.Context, text string) (entity.Message, error)
}

type StatusListener func(voice.Status)

type SessionConfig struct {
	// LockDistance is how far up the finger must travel to lock hands-free mode.
	LockDistance float64
	// CancelDistance is how far sideways the finger must travel to cancel.
	CancelDistance float64
	TickInterval   time.Duration
	// EndTimeout finishes a send when the recognizer never reports its end.
	EndTimeout    time.Duration
	SubmitTimeout time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.LockDistance <= 0 {
		c.LockDistance = 50
	}
	if c.CancelDistance <= 0 {
		c.CancelDistance = 100
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.EndTimeout <= 0 {
		c.EndTimeout = 5 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
	return c
}

// Session is the press-and-hold capture state machine for one client. Gesture
// events and recognizer callbacks arrive on different goroutines; every
// transition happens under mu, and the recognizer and submitter are only
// called after mu is released.
type Session struct {
	id         string
	log        *logrus.Logger
	recognizer speech.Recognizer
	submitter  Submitter
	cfg        SessionConfig
	now        func() time.Time

	mu              sync.Mutex
	state           entity.VoiceState
	origin          entity.Point
	buffer          []string
	pendingAutoSend bool
	starting        bool
	startedAt       time.Time
	tickDone        chan struct{}
	endTimer        *time.Timer
	endSeq          uint64
	closed          bool
	listener        StatusListener

	wg sync.WaitGroup
}

func NewSession(
	id string,
	log *logrus.Logger,
	recognizer speech.Recognizer,
	submitter Submitter,
	cfg SessionConfig,
) *Session {
	s := &Session{
		id:         id,
		log:        log,
		recognizer: recognizer,
		submitter:  submitter,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
		state:      entity.VoiceIdle,
	}
	recognizer.SetCallbacks(s)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// OnStatus registers the single listener that mirrors state to the UI.
func (s *Session) OnStatus(listener StatusListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listener = listener
}

func (s *Session) State() entity.VoiceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Status() voice.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statusLocked()
}

// Press starts a capture at p. Pressing while a capture is running is ignored.
// The session only enters RECORDING once the recognizer has started.
func (s *Session) Press(p entity.Point) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return voice.ErrSessionClosed
	}
	switch s.state {
	case entity.VoiceRecording, entity.VoiceLocked:
		s.mu.Unlock()
		return nil
	case entity.VoiceSending:
		s.mu.Unlock()
		return voice.ErrCaptureInProgress
	}
	if s.starting {
		s.mu.Unlock()
		return nil
	}

	if !s.recognizer.Available() {
		s.mu.Unlock()
		return voice.ErrRecognitionUnavailable
	}
	s.starting = true
	s.mu.Unlock()

	err := s.recognizer.Start()

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{
			"session_id": s.id,
			"error":      err.Error(),
		}).Warn("Recognizer failed to start")

		if errors.Is(err, speech.ErrUnavailable) {
			return voice.ErrRecognitionUnavailable
		}
		return fmt.Errorf("failed to start recognizer: %w", err)
	}
	if s.closed {
		s.mu.Unlock()
		s.stopRecognizer()
		return voice.ErrSessionClosed
	}

	s.state = entity.VoiceRecording
	s.origin = p
	s.buffer = nil
	s.pendingAutoSend = false
	s.startedAt = s.now()
	s.startTickerLocked()
	notify := s.notifierLocked()
	s.mu.Unlock()

	notify()
	return nil
}

// Move tracks the finger while recording. Sliding sideways cancels; sliding up
// locks. The horizontal check wins when both thresholds are crossed.
func (s *Session) Move(p entity.Point) {
	s.mu.Lock()
	if s.state != entity.VoiceRecording {
		s.mu.Unlock()
		return
	}

	dx := p.X - s.origin.X
	dy := s.origin.Y - p.Y

	if math.Abs(dx) > s.cfg.CancelDistance {
		s.resetLocked(entity.VoiceCancelled)
		notify := s.notifierLocked()
		s.mu.Unlock()

		notify()
		s.stopRecognizer()
		return
	}

	if dy > s.cfg.LockDistance {
		s.state = entity.VoiceLocked
		notify := s.notifierLocked()
		s.mu.Unlock()
		notify()
		return
	}

	s.mu.Unlock()
}

// Release ends a held capture. A locked capture keeps running until Send or
// Discard.
func (s *Session) Release() {
	s.finish(entity.VoiceRecording)
}

// Send ends a locked capture.
func (s *Session) Send() {
	s.finish(entity.VoiceLocked)
}

// finish stops the stream and waits for its end to submit: the recognizer may
// still deliver final fragments after stop is requested.
func (s *Session) finish(from entity.VoiceState) {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return
	}

	s.state = entity.VoiceSending
	s.pendingAutoSend = true
	s.stopTickerLocked()
	s.armEndTimerLocked()
	notify := s.notifierLocked()
	s.mu.Unlock()

	notify()
	s.stopRecognizer()
}

// Discard drops a capture that has not been sent yet.
func (s *Session) Discard() {
	s.cancelIf(func(st entity.VoiceState) bool {
		return st == entity.VoiceRecording || st == entity.VoiceLocked
	})
}

// Cancel drops the capture, including one waiting for the recognizer to end.
// Nothing said so far, or arriving later, is sent.
func (s *Session) Cancel() {
	s.cancelIf(entity.VoiceState.IsCapturing)
}

func (s *Session) cancelIf(match func(entity.VoiceState) bool) {
	s.mu.Lock()
	if !match(s.state) {
		s.mu.Unlock()
		return
	}

	s.resetLocked(entity.VoiceCancelled)
	notify := s.notifierLocked()
	s.mu.Unlock()

	notify()
	s.stopRecognizer()
}

func (s *Session) OnFinalResult(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if !s.state.IsCapturing() {
		s.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, text)
	notify := s.notifierLocked()
	s.mu.Unlock()

	notify()
}

// OnEnd either completes a pending send or, if the stream ended on its own
// while the user is still talking, starts it again.
func (s *Session) OnEnd() {
	s.mu.Lock()
	switch {
	case s.state == entity.VoiceSending && s.pendingAutoSend:
		text := s.takeLocked()
		notify := s.notifierLocked()
		s.mu.Unlock()

		notify()
		s.submit(text)

	case s.state == entity.VoiceRecording || s.state == entity.VoiceLocked:
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{"session_id": s.id}).Debug("Recognizer ended early, restarting")
		if err := s.recognizer.Start(); err != nil {
			s.abort(err.Error())
		}

	default:
		s.mu.Unlock()
	}
}

func (s *Session) OnError(code string) {
	if code == NoSpeechError {
		return
	}
	s.abort(code)
}

// Close cancels any capture and waits for background work to stop.
func (s *Session) Close() {
	s.Cancel()

	s.mu.Lock()
	s.closed = true
	s.listener = nil
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Session) abort(reason string) {
	s.mu.Lock()
	if !s.state.IsCapturing() {
		s.mu.Unlock()
		return
	}

	s.log.WithFields(logrus.Fields{
		"session_id": s.id,
		"state":      s.state,
		"reason":     reason,
	}).Warn("Voice capture aborted")

	s.resetLocked(entity.VoiceCancelled)
	notify := s.notifierLocked()
	s.mu.Unlock()

	notify()
	s.stopRecognizer()
}

func (s *Session) submit(text string) {
	if text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(
		contextPkg.WithRequestID(context.Background(), "voice-"+s.id),
		s.cfg.SubmitTimeout,
	)
	defer cancel()

	msg, err := s.submitter.Submit(ctx, text)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": s.id,
			"error":      err.Error(),
		}).Error("Failed to submit dictated message")
		return
	}

	s.log.WithFields(logrus.Fields{
		"session_id": s.id,
		"message_id": msg.ID,
		"status":     msg.Status,
	}).Info("Dictated message submitted")
}

func (s *Session) stopRecognizer() {
	if err := s.recognizer.Stop(); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": s.id,
			"error":      err.Error(),
		}).Warn("Recognizer failed to stop")
	}
}

// takeLocked hands the buffered text over and returns the session to idle.
func (s *Session) takeLocked() string {
	text := strings.Join(s.buffer, " ")
	s.resetLocked(entity.VoiceIdle)
	return text
}

func (s *Session) resetLocked(state entity.VoiceState) {
	s.state = state
	s.buffer = nil
	s.pendingAutoSend = false
	s.stopTickerLocked()
	if s.endTimer != nil {
		s.endTimer.Stop()
		s.endTimer = nil
	}
}

func (s *Session) startTickerLocked() {
	s.stopTickerLocked()

	done := make(chan struct{})
	s.tickDone = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.tickDone != done {
					s.mu.Unlock()
					return
				}
				notify := s.notifierLocked()
				s.mu.Unlock()
				notify()
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.tickDone != nil {
		close(s.tickDone)
		s.tickDone = nil
	}
}

func (s *Session) armEndTimerLocked() {
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
	s.endSeq++
	seq := s.endSeq
	s.endTimer = time.AfterFunc(s.cfg.EndTimeout, func() {
		s.endTimedOut(seq)
	})
}

// endTimedOut gives up on the stream that never reported its end and sends
// what was captured. The stream is abandoned first so nothing it reports later
// reaches this or the next capture.
func (s *Session) endTimedOut(seq uint64) {
	s.mu.Lock()
	waiting := s.awaitingEndLocked(seq)
	s.mu.Unlock()
	if !waiting {
		return
	}

	s.log.WithFields(logrus.Fields{"session_id": s.id}).Warn("Recognizer did not report end, sending anyway")
	s.recognizer.Abandon()

	s.mu.Lock()
	if !s.awaitingEndLocked(seq) {
		s.mu.Unlock()
		return
	}
	text := s.takeLocked()
	notify := s.notifierLocked()
	s.mu.Unlock()

	notify()
	s.submit(text)
}

func (s *Session) awaitingEndLocked(seq uint64) bool {
	return s.endSeq == seq && s.endTimer != nil && s.state == entity.VoiceSending && s.pendingAutoSend
}

func (s *Session) statusLocked() voice.Status {
	st := voice.Status{
		State:     s.state,
		Fragments: len(s.buffer),
	}
	if s.state == entity.VoiceRecording || s.state == entity.VoiceLocked {
		st.ElapsedMs = s.now().Sub(s.startedAt).Milliseconds()
	}
	return st
}

// notifierLocked captures the current status so it can be published after mu
// is released.
func (s *Session) notifierLocked() func() {
	listener := s.listener
	if listener == nil {
		return func() {}
	}
	st := s.statusLocked()
	return func() { listener(st) }
}
