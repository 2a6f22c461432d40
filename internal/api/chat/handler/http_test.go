package chatHandler

import (
	"FinChat/internal/api/chat"
	chatRepository "FinChat/internal/api/chat/repository"
	chatService "FinChat/internal/api/chat/service"
	"FinChat/internal/entity"
	"FinChat/internal/middleware"
	"FinChat/pkg/connectivity"
	"FinChat/pkg/handlerUtil"
	"FinChat/pkg/log"
	"FinChat/pkg/nlp"
	"FinChat/pkg/snapshot"
	"FinChat/pkg/utils"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type okSender struct{}

func (okSender) Send(_ context.Context, _ string, _ entity.SendAction) (*entity.SendResult, error) {
	return &entity.SendResult{Replies: []entity.MessageBody{{Text: "registrado"}}}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := log.NewTestLogger()
	signal := connectivity.NewSignal(true, 0)
	svc := chatService.NewChatService(
		logger,
		chatRepository.NewMemory(logger),
		okSender{},
		signal,
		nlp.NewResolver(nil),
		snapshot.NewMemory(),
		utils.New(),
		chatService.Config{},
	)

	app := fiber.New()
	mw := middleware.New(logger, rate.Inf, 100)
	app.Use(mw.NewRequestIDMiddleware())
	New(logger, validator.New(validator.WithRequiredStructEnabled()), mw, svc, signal).Start(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, jsoniter.Unmarshal(raw, out), "body %s", raw)
	}
	return resp.StatusCode
}

func TestChatHandler_OfflineRoundTrip(t *testing.T) {
	app := newTestApp(t)

	var conn chat.ConnectivityResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, "/connectivity", `{"online":false}`, &conn))
	assert.False(t, conn.Online)

	var msg entity.Message
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, "/chat/messages", `{"text":"Paguei 150 de Netflix"}`, &msg))
	assert.Equal(t, entity.StatusPending, msg.Status)

	var queue chat.QueueResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/chat/queue", "", &queue))
	require.Equal(t, 1, queue.Size)
	assert.Equal(t, msg.ID, queue.Entries[0].CorrelationID)

	require.Equal(t, http.StatusOK, do(t, app, http.MethodPut, "/connectivity", `{"online":true}`, &conn))
	assert.True(t, conn.Online)

	var report chat.FlushReport
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/chat/queue/flush", "", &report))
	assert.Equal(t, 1, report.Sent)

	var history chat.MessageListResponse
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/chat/messages", "", &history))
	require.Equal(t, 2, history.Total)
	assert.Equal(t, entity.StatusSent, history.Messages[0].Status)
	assert.Equal(t, "registrado", history.Messages[1].Body.Text)

	var read entity.Message
	require.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/chat/messages/"+msg.ID+"/read", "", &read))
	assert.Equal(t, entity.StatusRead, read.Status)

	require.Equal(t, http.StatusNoContent, do(t, app, http.MethodDelete, "/chat/messages", "", nil))
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/chat/messages", "", &history))
	assert.Zero(t, history.Total)
}

func TestChatHandler_Errors(t *testing.T) {
	app := newTestApp(t)

	var errResp handlerUtil.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, "/chat/messages", `{"text":"   "}`, &errResp))
	assert.Equal(t, "EMPTY_MESSAGE", errResp.Code)

	errResp = handlerUtil.ErrorResponse{}
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodPost, "/chat/messages/missing/read", "", &errResp))
	assert.Equal(t, "MESSAGE_NOT_FOUND", errResp.Code)

	errResp = handlerUtil.ErrorResponse{}
	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPut, "/connectivity", `{}`, &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	errResp = handlerUtil.ErrorResponse{}
	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, "/chat/messages", `{"text":"`+strings.Repeat("a", 4001)+`"}`, &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	assert.Equal(t, http.StatusUpgradeRequired, do(t, app, http.MethodGet, "/chat/stream", "", nil))
}

func TestChatHandler_Snapshot(t *testing.T) {
	app := newTestApp(t)

	var errResp handlerUtil.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPut, "/snapshot",
		`{"accounts":[{"id":"acc-1","name":"Conta","balance":"abc"}]}`, &errResp))

	require.Equal(t, http.StatusNoContent, do(t, app, http.MethodPut, "/snapshot",
		`{"accounts":[{"id":"acc-1","name":"Conta","balance":"1250.50","currency":"BRL"}],"cards":[{"id":"c1","name":"Visa","limit":"3000","used":"120"}]}`, nil))

	var snap entity.Snapshot
	require.Equal(t, http.StatusOK, do(t, app, http.MethodGet, "/snapshot", "", &snap))
	require.Contains(t, snap.Accounts, "acc-1")
	assert.Equal(t, "1250.5", snap.Accounts["acc-1"].Balance.String())
	require.Contains(t, snap.Cards, "c1")
	assert.Equal(t, "2880", snap.Cards["c1"].Available().String())
}
