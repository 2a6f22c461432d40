package handlerUtil

import (
	"FinChat/internal/api/chat"
	"FinChat/internal/api/voice"
	"FinChat/pkg/log"
	"FinChat/pkg/response"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// coded errors carry a stable machine-readable code for the UI.
var coded = []struct {
	err  error
	code string
}{
	{chat.ErrEmptyMessage, "EMPTY_MESSAGE"},
	{chat.ErrMessageNotFound, "MESSAGE_NOT_FOUND"},
	{chat.ErrNotRetryable, "NOT_RETRYABLE"},
	{chat.ErrNotReadable, "NOT_READABLE"},
	{chat.ErrInvalidSnapshot, "INVALID_SNAPSHOT"},
	{voice.ErrRecognitionUnavailable, "RECOGNITION_UNAVAILABLE"},
	{voice.ErrUnknownEvent, "UNKNOWN_EVENT"},
	{voice.ErrCaptureInProgress, "CAPTURE_IN_PROGRESS"},
	{voice.ErrSessionClosed, "SESSION_CLOSED"},
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}

	for _, ce := range coded {
		if errors.Is(err, ce.err) {
			status := response.CodeOf(ce.err, fiber.StatusBadRequest)
			h.logger.WithFields(fields).Warn("Operation rejected")
			return c.Status(status).JSON(ErrorResponse{
				Error: err.Error(),
				Code:  ce.code,
			})
		}
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		fields["code"] = respErr.Code
		if respErr.Code >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("Operation failed with error response")
		} else {
			h.logger.WithFields(fields).Warn("Operation failed with error response")
		}
		return c.Status(respErr.Code).JSON(ErrorResponse{Error: err.Error()})
	}

	traceID := log.ErrorWithTraceID(fields, "Unexpected error")

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "An unexpected error occurred",
		Details: traceID,
	})
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "Validation failed: " + err.Error(),
		Code:  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(utils.StatusMessage(fiber.StatusRequestTimeout))
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
