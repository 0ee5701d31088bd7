package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var (
		jsonOutput bool
		useWS      bool
		count      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream live board events",
		Long: `Connect to the board's event stream and print events in real-time.

Events include:
  - tile_claimed: A player claimed a tile
  - board_reset: Every claim was cleared and the board reshuffled

The SSE endpoint is used by default; --ws switches to the websocket.
Press Ctrl+C to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := &eventPrinter{out: cmd.OutOrStdout(), json: jsonOutput, limit: count}
			if useWS {
				return streamWebSocket(ctx, p)
			}
			return streamSSE(ctx, p)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	cmd.Flags().BoolVar(&useWS, "ws", false, "Use the websocket endpoint instead of SSE")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 streams until interrupted)")

	return cmd
}

// StreamEvent represents a received event
type StreamEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  string    `json:"data"`
}

// errEnough stops a stream once the requested number of events was printed
var errEnough = errors.New("event limit reached")

type eventPrinter struct {
	out   io.Writer
	json  bool
	limit int
	seen  int
}

func (p *eventPrinter) connected(transport string) {
	if !p.json {
		fmt.Fprintf(p.out, "Connected to %s (%s)\n", client.BaseURL(), transport)
	}
}

func (p *eventPrinter) disconnected() {
	if !p.json {
		fmt.Fprintln(p.out, "Disconnected")
	}
}

// print writes one event and reports errEnough once the limit is reached
func (p *eventPrinter) print(event, data string) error {
	now := time.Now()

	if p.json {
		line, _ := json.Marshal(StreamEvent{Time: now, Event: event, Data: data})
		fmt.Fprintln(p.out, string(line))
	} else {
		displayData := strings.ReplaceAll(data, "\n", " ")
		if len(displayData) > 120 {
			displayData = displayData[:120] + "..."
		}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", now.Format("2006-01-02 15:04:05"), event, displayData)
	}

	p.seen++
	if p.limit > 0 && p.seen >= p.limit {
		return errEnough
	}
	return nil
}

func streamSSE(ctx context.Context, p *eventPrinter) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.BaseURL()+"/api/v1/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// No timeout for SSE
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	p.connected("sse")

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			// The stream's own hello is not a board event
			if currentEvent != "" && currentEvent != "connected" {
				if err := p.print(currentEvent, strings.Join(dataLines, "\n")); err != nil {
					return nil
				}
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream error: %w", err)
	}
	p.disconnected()
	return nil
}

func streamWebSocket(ctx context.Context, p *eventPrinter) error {
	wsURL := "ws" + strings.TrimPrefix(client.BaseURL(), "http") + "/api/v1/ws"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()
	p.connected("websocket")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				p.disconnected()
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}

		var envelope struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &envelope)

		if err := p.print(envelope.Type, string(data)); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}
