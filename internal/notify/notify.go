// Package notify fans board events out to connected observers.
//
// Delivery is at-least-once to observers connected at publish time and
// best-effort overall: nothing is replayed to observers that connect later.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/tileclaim/internal/model"
)

// ErrHubBusy is returned when a hub cannot accept another event
var ErrHubBusy = errors.New("hub broadcast buffer full")

// Broadcaster publishes an event on a topic
type Broadcaster interface {
	Publish(ctx context.Context, topic string, event model.Event) error
}

// Func adapts a function to the Broadcaster interface
type Func func(ctx context.Context, topic string, event model.Event) error

func (f Func) Publish(ctx context.Context, topic string, event model.Event) error {
	return f(ctx, topic, event)
}

// Fanout publishes to every target. It never returns an error: failures
// are logged and swallowed so callers' primary operations are unaffected.
type Fanout struct {
	targets []Broadcaster
	logger  *slog.Logger
}

// NewFanout creates a Fanout over the given targets
func NewFanout(logger *slog.Logger, targets ...Broadcaster) *Fanout {
	return &Fanout{
		targets: targets,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Ensure Fanout implements Broadcaster
var _ Broadcaster = (*Fanout)(nil)

func (f *Fanout) Publish(ctx context.Context, topic string, event model.Event) error {
	for _, target := range f.targets {
		if err := publishSafely(ctx, target, topic, event); err != nil {
			f.logger.Error("broadcast failed",
				slog.String("topic", topic),
				slog.String("event", string(event.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func publishSafely(ctx context.Context, b Broadcaster, topic string, event model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("broadcaster panicked")
		}
	}()
	return b.Publish(ctx, topic, event)
}
