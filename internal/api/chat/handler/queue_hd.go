package chatHandler

import (
	contextPkg "FinChat/pkg/context"
	"FinChat/pkg/handlerUtil"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *ChatHandler) GetQueue(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	queue, err := h.chatService.Queue(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_queue")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, queue)
}

// FlushQueue runs a flush in the request so the caller gets the report back.
func (h *ChatHandler) FlushQueue(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 60*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	report, err := h.chatService.Flush(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "flush_queue")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, report)
}
