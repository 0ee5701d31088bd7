package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/mcoot/tileclaim/internal/dependencies/mocks"
	"github.com/mcoot/tileclaim/internal/services/auth"
	"github.com/mcoot/tileclaim/internal/services/roster"
	"github.com/mcoot/tileclaim/internal/storage/memory"
	"github.com/mcoot/tileclaim/internal/tasks"
	"github.com/mcoot/tileclaim/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// TestRoster returns n footballers rated 90, 80, 70, ...
func TestRoster(n int) []roster.Entry {
	entries := make([]roster.Entry, n)
	for i := range entries {
		entries[i] = roster.Entry{
			TileIndex:   i,
			Name:        fmt.Sprintf("Footballer %d", i),
			Overall:     90 - 10*(i%9),
			ImageURL:    fmt.Sprintf("https://img.example/%d.png", i),
			Nationality: "Portugal",
		}
	}
	return entries
}

// NewTestApp creates an App configured for testing with mocked dependencies
// and a small seeded board. Task workers are running.
func NewTestApp(tiles int) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	app, err := newWithDependencies(store, mockClock, mockRandom, Config{
		AuthConfig:   auth.Config{Secret: "test-secret", TokenTTL: time.Hour},
		StoreTimeout: time.Second,
		Roster:       TestRoster(tiles),
		TaskConfig:   tasks.Config{Workers: 1, QueueSize: 64, TaskTimeout: time.Second},
	}, testutil.NopLogger(), nil)
	if err != nil {
		panic(err)
	}
	if err := app.Seed(context.Background()); err != nil {
		panic(err)
	}
	app.Tasks.Start()

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}

// WaitForTasks blocks until every submitted task has finished
func (t *TestApp) WaitForTasks(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		stats := t.Tasks.Stats()
		if stats.Completed+stats.Failed == stats.Submitted {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
