package voice

import "FinChat/internal/entity"

// Events the UI sends over the voice socket.
const (
	EventHello   = "hello"
	EventPress   = "press"
	EventMove    = "move"
	EventRelease = "release"
	EventSend    = "send"
	EventDiscard = "discard"
	EventResult  = "recognizer.result"
	EventEnd     = "recognizer.end"
	EventError   = "recognizer.error"
)

type ClientEvent struct {
	Type       string  `json:"type" validate:"required,oneof=hello press move release send discard recognizer.result recognizer.end recognizer.error"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Text       string  `json:"text,omitempty"`
	Code       string  `json:"code,omitempty"`
	Stream     uint64  `json:"stream,omitempty"`
	Recognizer *bool   `json:"recognizer,omitempty"`
}

func (e ClientEvent) Point() entity.Point {
	return entity.Point{X: e.X, Y: e.Y}
}

// Status is what the UI renders for the capture button.
type Status struct {
	State     entity.VoiceState `json:"state"`
	ElapsedMs int64             `json:"elapsed_ms"`
	Fragments int               `json:"fragments"`
}

type StatusEvent struct {
	Type string `json:"type"`
	Status
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

const (
	ServerEventStatus = "status"
	ServerEventError  = "error"
)
