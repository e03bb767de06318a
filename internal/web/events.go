package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

const keepAliveInterval = 25 * time.Second

// Events handles GET /events, a Server-Sent Events stream of console
// events for the configured profile. Open tabs reload their state when
// a session or prediction event arrives.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan *domain.Message, 16)
	relay := func(_ context.Context, msg *domain.Message) error {
		select {
		case events <- msg:
		default:
			// slow client, it will catch up on the next event
		}
		return nil
	}

	for _, topic := range domain.ConsoleTopics() {
		sub, err := h.bus.Subscribe(ctx, h.profile, topic, relay)
		if err != nil {
			slog.Error("failed to subscribe event stream", "topic", topic, "error", err)
			http.Error(w, "streaming unavailable", http.StatusServiceUnavailable)
			return
		}
		defer sub.Unsubscribe()
	}

	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		slog.Warn("event stream unsupported", "error", err)
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.streamsDone:
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		case msg := <-events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, msg.Payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
