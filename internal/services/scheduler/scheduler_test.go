package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcoot/tileclaim/internal/dependencies/mocks"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResetter struct {
	mu         sync.Mutex
	boundaries []time.Time
	err        error
}

func (r *recordingResetter) ResetSince(ctx context.Context, boundary time.Time) (*model.ResetOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.boundaries = append(r.boundaries, boundary)
	return &model.ResetOutcome{Status: model.ResetStatusReset, Generation: int64(len(r.boundaries))}, nil
}

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New("every day at noon", &recordingResetter{}, mocks.NewMockClock(baseTime), testutil.NopLogger())
	assert.Error(t, err)
}

func TestNewDefaultsSpec(t *testing.T) {
	s, err := New("", &recordingResetter{}, mocks.NewMockClock(baseTime), testutil.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, s.spec)
}

func TestNextIsMidnightUTC(t *testing.T) {
	clk := mocks.NewMockClock(baseTime)
	s, err := New(DefaultSpec, &recordingResetter{}, clk, testutil.NopLogger())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Next())

	// Evaluated in UTC regardless of the clock's location
	clk.Set(time.Date(2024, 1, 2, 1, 30, 0, 0, time.FixedZone("UTC+5", 5*60*60)))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Next())
}

func TestTriggerTruncatesBoundaryToMinute(t *testing.T) {
	resetter := &recordingResetter{}
	s, err := New(DefaultSpec, resetter, mocks.NewMockClock(baseTime), testutil.NopLogger())
	require.NoError(t, err)

	firedAt := time.Date(2024, 1, 2, 0, 0, 0, 250*int(time.Millisecond), time.UTC)
	outcome, err := s.Trigger(context.Background(), firedAt)
	require.NoError(t, err)
	assert.True(t, outcome.Performed())

	_, err = s.Trigger(context.Background(), firedAt.Add(2*time.Second))
	require.NoError(t, err)

	// Both firings carry the same boundary so the resetter can dedupe them
	require.Len(t, resetter.boundaries, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), resetter.boundaries[0])
	assert.Equal(t, resetter.boundaries[0], resetter.boundaries[1])
}

func TestTriggerPropagatesFailure(t *testing.T) {
	resetter := &recordingResetter{err: errors.New("store down")}
	s, err := New(DefaultSpec, resetter, mocks.NewMockClock(baseTime), testutil.NopLogger())
	require.NoError(t, err)

	_, err = s.Trigger(context.Background(), baseTime)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := New(DefaultSpec, &recordingResetter{}, mocks.NewMockClock(baseTime), testutil.NopLogger())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
