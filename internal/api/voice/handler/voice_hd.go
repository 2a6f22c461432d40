package voiceHandler

import (
	"FinChat/internal/api/voice"
	voiceService "FinChat/internal/api/voice/service"
	"FinChat/pkg/speech"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
)

const writeTimeout = 10 * time.Second

// handleCapture runs one client's capture session. The UI sends gesture events
// and the results of its platform recognizer; the server answers with
// recognizer commands and status updates.
func (h *VoiceHandler) handleCapture(c *websocket.Conn) {
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return c.WriteJSON(v)
	}

	bridge := speech.NewBridge(func(cmd speech.Command) error {
		return writeJSON(cmd)
	})

	session, err := h.voiceService.Open(bridge)
	if err != nil {
		h.log.Errorf("Failed to open voice session: %v", err)
		return
	}
	defer h.voiceService.Close(session.ID())

	h.log.Infof("Voice client connected, session %s", session.ID())
	defer h.log.Infof("Voice client disconnected, session %s", session.ID())

	session.OnStatus(func(st voice.Status) {
		if err := writeJSON(voice.StatusEvent{Type: voice.ServerEventStatus, Status: st}); err != nil {
			h.log.Debugf("Failed to push voice status: %v", err)
		}
	})

	for {
		messageType, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Voice WebSocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var ev voice.ClientEvent
		if err := jsoniter.Unmarshal(raw, &ev); err != nil {
			h.writeError(writeJSON, voice.ErrUnknownEvent)
			continue
		}
		if err := h.validator.Struct(ev); err != nil {
			h.writeError(writeJSON, voice.ErrUnknownEvent)
			continue
		}

		if err := dispatch(session, bridge, ev); err != nil {
			h.writeError(writeJSON, err)
		}
	}
}

func dispatch(session *voiceService.Session, bridge *speech.Bridge, ev voice.ClientEvent) error {
	switch ev.Type {
	case voice.EventHello:
		bridge.SetSupported(ev.Recognizer != nil && *ev.Recognizer)
	case voice.EventPress:
		return session.Press(ev.Point())
	case voice.EventMove:
		session.Move(ev.Point())
	case voice.EventRelease:
		session.Release()
	case voice.EventSend:
		session.Send()
	case voice.EventDiscard:
		session.Discard()
	case voice.EventResult:
		bridge.HandleFinalResult(ev.Stream, ev.Text)
	case voice.EventEnd:
		bridge.HandleEnd(ev.Stream)
	case voice.EventError:
		bridge.HandleError(ev.Stream, ev.Code)
	default:
		return voice.ErrUnknownEvent
	}
	return nil
}

func (h *VoiceHandler) writeError(writeJSON func(interface{}) error, err error) {
	if werr := writeJSON(voice.ErrorEvent{
		Type:  voice.ServerEventError,
		Code:  errorCode(err),
		Error: err.Error(),
	}); werr != nil {
		h.log.Debugf("Failed to push voice error: %v", werr)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, voice.ErrRecognitionUnavailable):
		return "RECOGNITION_UNAVAILABLE"
	case errors.Is(err, voice.ErrCaptureInProgress):
		return "CAPTURE_IN_PROGRESS"
	case errors.Is(err, voice.ErrUnknownEvent):
		return "UNKNOWN_EVENT"
	case errors.Is(err, voice.ErrSessionClosed):
		return "SESSION_CLOSED"
	default:
		return "INTERNAL_ERROR"
	}
}
