package assistant

import (
	"FinChat/internal/entity"
	contextPkg "FinChat/pkg/context"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	MessagesEndpoint = "/assistant/messages"

	IdempotencyKeyHeader = "Idempotency-Key"
)

// ISender delivers one action to the remote assistant. The server treats the
// correlation id as an idempotency key, so the same action may be sent again
// after a crash without duplicating its effect.
type ISender interface {
	Send(ctx context.Context, correlationID string, action entity.SendAction) (*entity.SendResult, error)
}

// RejectedError is a definitive answer from the server: replaying the same
// action will not succeed.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("assistant rejected the request (%d): %s", e.StatusCode, e.Reason)
}

func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

type sendBody struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}

// BuildSendAction wraps typed or dictated text into the action the queue stores.
func BuildSendAction(text, messageID string) (entity.SendAction, error) {
	body, err := jsoniter.Marshal(sendBody{Message: text, MessageID: messageID})
	if err != nil {
		return entity.SendAction{}, err
	}
	return entity.SendAction{
		Endpoint: MessagesEndpoint,
		Method:   http.MethodPost,
		Body:     body,
	}, nil
}

type httpSender struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

func New(log *logrus.Logger) ISender {
	timeout := 15 * time.Second
	if v, err := time.ParseDuration(os.Getenv("SEND_TIMEOUT")); err == nil && v > 0 {
		timeout = v
	}
	return NewHTTPSender(os.Getenv("ASSISTANT_API_URL"), &http.Client{Timeout: timeout}, log)
}

func NewHTTPSender(baseURL string, client *http.Client, log *logrus.Logger) ISender {
	return &httpSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (s *httpSender) Send(ctx context.Context, correlationID string, action entity.SendAction) (*entity.SendResult, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.baseURL == "" {
		return nil, errors.New("assistant API URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, action.Method, s.baseURL+action.Endpoint, bytes.NewReader(action.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(IdempotencyKeyHeader, correlationID)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":     requestID,
		"correlation_id": correlationID,
		"status":         resp.StatusCode,
	}).Debug("Assistant responded")

	if resp.StatusCode >= 400 {
		if isDefinitive(resp.StatusCode) {
			return nil, &RejectedError{StatusCode: resp.StatusCode, Reason: errorReason(raw)}
		}
		return nil, fmt.Errorf("assistant unavailable: status %d", resp.StatusCode)
	}

	result := &entity.SendResult{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	if err := jsoniter.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result, nil
}

// isDefinitive treats client errors as final, except the ones that mean "try later".
func isDefinitive(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func errorReason(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := jsoniter.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
