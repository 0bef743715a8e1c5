package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-service/internal/realtime"
)

// RealtimeHandler streams invalidation signals to dispatch boards as
// server-sent events.
type RealtimeHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(hub *realtime.Hub, heartbeat time.Duration) *RealtimeHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &RealtimeHandler{hub: hub, heartbeat: heartbeat}
}

// Stream GET /realtime/visits.
func (h *RealtimeHandler) Stream(c *fiber.Ctx) error {
	if _, err := requireSession(c); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		fmt.Fprint(w, "retry: 3000\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case sig, ok := <-sub.C:
				if !ok {
					return
				}
				data, err := json.Marshal(sig)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: invalidate\ndata: %s\n\n", data)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}
