package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/testutil"
)

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "tile_claimed",
			data:      `{"type":"tile_claimed"}`,
			expected:  "event: tile_claimed\ndata: {\"type\":\"tile_claimed\"}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "board_reset",
			data:      "{\n  \"generation\": 2\n}",
			expected:  "event: board_reset\ndata: {\ndata:   \"generation\": 2\ndata: }\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "data with carriage returns",
			eventName: "test",
			data:      "line1\r\nline2",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(formatSSEMessage(tt.eventName, tt.data)))
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single line", input: "hello", expected: []string{"hello"}},
		{name: "two lines", input: "line1\nline2", expected: []string{"line1", "line2"}},
		{name: "trailing newline", input: "line1\n", expected: []string{"line1"}},
		{name: "empty string", input: "", expected: []string{""}},
		{name: "crlf line endings", input: "line1\r\nline2\r\n", expected: []string{"line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitLines(tt.input))
		})
	}
}

func TestServeSSEStreamsHubEvents(t *testing.T) {
	manager := notify.NewHubManager(testutil.NopLogger())
	defer manager.CloseAll()
	hub := manager.GetOrCreateHub(model.BoardTopic)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeSSE(w, r, hub, "observer-1", testutil.NopLogger())
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	reader := bufio.NewReader(resp.Body)
	readUntil := func(prefix string) string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
	}

	assert.Equal(t, "3000", readUntil("retry: "))
	assert.Equal(t, "connected", readUntil("event: "))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, manager.Publish(ctx, model.BoardTopic, model.Event{
		Type:       model.EventBoardReset,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Generation: 4,
		Payload:    model.BoardResetPayload{Forced: true, Reason: "scheduled", TileCount: 100},
	}))

	assert.Equal(t, "board_reset", readUntil("event: "))
	data := readUntil("data: ")
	assert.Contains(t, data, `"generation":4`)
	assert.Contains(t, data, `"reason":"scheduled"`)
}

func TestServeSSEClosedHub(t *testing.T) {
	hub := notify.NewHub(model.BoardTopic, testutil.NopLogger())
	hub.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	ServeSSE(rr, req, hub, "observer-1", testutil.NopLogger())

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
