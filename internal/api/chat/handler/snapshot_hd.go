package chatHandler

import (
	"FinChat/internal/api/chat"
	"FinChat/internal/entity"
	contextPkg "FinChat/pkg/context"
	"FinChat/pkg/handlerUtil"
	"FinChat/pkg/response"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/net/context"
)

func (h *ChatHandler) GetSnapshot(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	snap, err := h.chatService.Snapshot(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_snapshot")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, snap)
}

func (h *ChatHandler) ReplaceSnapshot(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req chat.ReplaceSnapshotRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	snap, err := makeSnapshot(req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "replace_snapshot")
	}

	if err := h.chatService.ReplaceSnapshot(c, snap); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "replace_snapshot")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
}

func makeSnapshot(req chat.ReplaceSnapshotRequest) (entity.Snapshot, error) {
	snap := entity.NewSnapshot()

	for _, a := range req.Accounts {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return entity.Snapshot{}, response.Wrap(chat.ErrInvalidSnapshot, "account %s balance", a.ID)
		}
		snap.Accounts[a.ID] = entity.AccountBalance{
			ID:       a.ID,
			Name:     a.Name,
			Balance:  balance,
			Currency: a.Currency,
			SyncedAt: a.SyncedAt,
		}
	}

	for _, c := range req.Cards {
		limit, err := decimal.NewFromString(c.Limit)
		if err != nil {
			return entity.Snapshot{}, response.Wrap(chat.ErrInvalidSnapshot, "card %s limit", c.ID)
		}
		used, err := decimal.NewFromString(c.Used)
		if err != nil {
			return entity.Snapshot{}, response.Wrap(chat.ErrInvalidSnapshot, "card %s used", c.ID)
		}
		snap.Cards[c.ID] = entity.CardUsage{
			ID:       c.ID,
			Name:     c.Name,
			Brand:    c.Brand,
			Limit:    limit,
			Used:     used,
			SyncedAt: c.SyncedAt,
		}
	}

	return snap, nil
}
