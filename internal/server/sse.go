package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cmericli/claude-remote/internal/bus"
)

// keepaliveInterval is the SSE comment cadence on an otherwise-idle
// stream.
const keepaliveInterval = 30 * time.Second

// handleEvents streams bus events as server-sent events. The topic query
// parameter selects a session topic; it defaults to the global dashboard
// topic.
func (s *Server) handleEvents(c echo.Context) error {
	topic := c.QueryParam("topic")
	if topic == "" {
		topic = bus.TopicGlobal
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody("streaming unsupported"))
	}

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.bus.Subscribe(topic)
	defer s.bus.Unsubscribe(sub)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(c.Response().Writer, ": keepalive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				// Evicted by the topic's subscriber cap.
				return nil
			}
			if err := writeSSE(c.Response().Writer, ev); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
