package chatHandler

import (
	chatService "FinChat/internal/api/chat/service"
	"FinChat/internal/middleware"
	"FinChat/pkg/connectivity"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type ChatHandler struct {
	log         *logrus.Logger
	validator   *validator.Validate
	middleware  middleware.Middleware
	chatService chatService.IChatService
	signal      connectivity.ISignal
}

func New(
	log *logrus.Logger,
	validate *validator.Validate,
	middleware middleware.Middleware,
	cs chatService.IChatService,
	signal connectivity.ISignal,
) *ChatHandler {
	return &ChatHandler{
		log:         log,
		validator:   validate,
		middleware:  middleware,
		chatService: cs,
		signal:      signal,
	}
}

func (h *ChatHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	chat := srv.Group("/chat")
	chat.Post("/messages", h.middleware.NewRateLimiter, h.SubmitMessage)
	chat.Get("/messages", h.GetHistory)
	chat.Delete("/messages", h.ResetSession)
	chat.Post("/messages/:id/read", h.MarkRead)
	chat.Post("/messages/:id/retry", h.middleware.NewRateLimiter, h.RetryMessage)

	chat.Get("/queue", h.GetQueue)
	chat.Post("/queue/flush", h.middleware.NewRateLimiter, h.FlushQueue)

	chat.Use("/stream", wsMiddleware)
	chat.Get("/stream", websocket.New(h.handleStream))

	conn := srv.Group("/connectivity")
	conn.Get("", h.GetConnectivity)
	conn.Put("", h.SetConnectivity)

	snap := srv.Group("/snapshot")
	snap.Get("", h.GetSnapshot)
	snap.Put("", h.ReplaceSnapshot)
}
