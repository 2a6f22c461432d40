package voice

import "FinChat/pkg/response"

var (
	ErrRecognitionUnavailable = response.NewError(503, "speech recognition is not available")
	ErrCaptureInProgress      = response.NewError(409, "previous capture is still being sent")
	ErrUnknownEvent           = response.NewError(400, "unknown voice event")
	ErrSessionClosed          = response.NewError(410, "voice session closed")
)
