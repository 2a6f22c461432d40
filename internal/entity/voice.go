package entity

type VoiceState string

const (
	VoiceIdle      VoiceState = "IDLE"
	VoiceRecording VoiceState = "RECORDING"
	VoiceLocked    VoiceState = "LOCKED"
	VoiceSending   VoiceState = "SENDING"
	VoiceCancelled VoiceState = "CANCELLED"
)

// IsCapturing is true while the recognizer stream belongs to the session.
func (s VoiceState) IsCapturing() bool {
	return s == VoiceRecording || s == VoiceLocked || s == VoiceSending
}

// IsTerminal is true once a new press may start a fresh capture.
func (s VoiceState) IsTerminal() bool {
	return s == VoiceIdle || s == VoiceCancelled
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
