package chatHandler

import (
	"FinChat/internal/api/chat"
	contextPkg "FinChat/pkg/context"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// handleStream pushes the history once, then every stored change, to the UI.
func (h *ChatHandler) handleStream(c *websocket.Conn) {
	h.log.Info("Chat stream client connected")
	defer h.log.Info("Chat stream client disconnected")

	events, unsubscribe := h.chatService.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Errorf("Chat stream read error: %v", err)
				}
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), "stream"), 10*time.Second)
	history, err := h.chatService.History(ctx)
	cancel()
	if err != nil {
		h.log.Errorf("Failed to load history for stream: %v", err)
		return
	}
	if err := h.write(c, chat.StreamEvent{Type: chat.StreamEventHistory, Messages: history}); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(c, ev); err != nil {
				h.log.Errorf("Error writing stream event: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *ChatHandler) write(c *websocket.Conn, ev chat.StreamEvent) error {
	if err := c.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return c.WriteJSON(ev)
}
