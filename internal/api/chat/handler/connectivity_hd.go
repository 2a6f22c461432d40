package chatHandler

import (
	"FinChat/internal/api/chat"
	"FinChat/pkg/handlerUtil"
	"FinChat/pkg/log"

	"github.com/gofiber/fiber/v2"
)

func (h *ChatHandler) GetConnectivity(ctx *fiber.Ctx) error {
	return handlerUtil.New(h.log).HandleSuccess(ctx, fiber.StatusOK, chat.ConnectivityResponse{
		Online: h.signal.IsOnline(),
	})
}

// SetConnectivity takes the UI's own view of the network, e.g. browser
// online/offline events.
func (h *ChatHandler) SetConnectivity(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	var req chat.ConnectivityRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"online":     *req.Online,
	}).Info("Connectivity reported by client")

	h.signal.Set(*req.Online)

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, chat.ConnectivityResponse{
		Online: h.signal.IsOnline(),
	})
}
