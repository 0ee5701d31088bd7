// Package ws streams board events to observers over a websocket.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mcoot/tileclaim/internal/notify"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time between keepalive pings
	pingPeriod = 30 * time.Second
)

// Options configures the websocket upgrade
type Options struct {
	// OriginPatterns lists the cross-origin hosts allowed to connect
	OriginPatterns []string
}

// ServeWS upgrades the request and forwards every event published on the
// hub as a JSON text message. Observers are read-only: anything they send
// is discarded.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *notify.Hub, subscriberID string, opts Options, logger *slog.Logger) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: opts.OriginPatterns,
	})
	if err != nil {
		logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	sub := notify.NewSubscriber(subscriberID, "ws")
	if !hub.Register(sub) {
		c.Close(websocket.StatusTryAgainLater, "event stream closed")
		return
	}
	defer hub.Unregister(sub)

	// CloseRead handles control frames and cancels ctx when the peer goes away
	ctx := c.CloseRead(r.Context())

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ctx, c, event); err != nil {
				logClose(logger, subscriberID, err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logClose(logger, subscriberID, err)
				return
			}

		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func write(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}

func logClose(logger *slog.Logger, subscriberID string, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		return
	}
	logger.Warn("websocket write failed",
		slog.String("subscriber", subscriberID),
		slog.String("error", err.Error()))
}
