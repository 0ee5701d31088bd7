// Package sse streams board events to observers as server-sent events.
package sse

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcoot/tileclaim/internal/notify"
)

const (
	// Time between keepalive comments
	pingPeriod = 30 * time.Second

	// Reconnect delay suggested to clients, in milliseconds
	retryMillis = 3000
)

// ServeSSE streams every event published on the hub until the client
// disconnects or the hub shuts down.
func ServeSSE(w http.ResponseWriter, r *http.Request, hub *notify.Hub, subscriberID string, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sub := notify.NewSubscriber(subscriberID, "sse")
	if !hub.Register(sub) {
		http.Error(w, "Event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(sub)

	_, _ = w.Write([]byte("retry: " + strconv.Itoa(retryMillis) + "\n\n"))
	_, _ = w.Write(formatSSEMessage("connected", `{"status":"connected"}`))
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// Hub closed the channel
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to encode event",
					slog.String("event", string(event.Type)),
					slog.String("error", err.Error()))
				continue
			}
			if _, err := w.Write(formatSSEMessage(string(event.Type), string(data))); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// formatSSEMessage formats an SSE message with event name and data.
// Every line of data gets its own "data: " prefix.
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteByte('\n')
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// splitLines splits a string into lines, dropping carriage returns
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
