package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// KeepAlive is the interval between SSE comment frames.
var KeepAlive = 15 * time.Second

// ServeSSE registers a session for userID and streams its events until the
// client goes away.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, userID uint) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	session := h.Register(userID)
	defer h.Unregister(session)

	fmt.Fprintf(w, "event: ready\ndata: {\"session\":%q}\n\n", session.ID)
	flusher.Flush()

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
