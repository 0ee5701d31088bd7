package cooldown

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Service holds the live policy and lets operators replace it at runtime
type Service struct {
	current atomic.Pointer[Policy]
	logger  *slog.Logger
}

// NewService creates a Service starting from the given policy (Default if nil)
func NewService(initial *Policy, logger *slog.Logger) *Service {
	if initial == nil {
		initial = Default()
	}
	s := &Service{logger: logger}
	s.current.Store(initial)
	return s
}

// For returns the cooldown for a rating under the current policy
func (s *Service) For(rating int) time.Duration {
	return s.current.Load().For(rating)
}

// Current returns the policy in effect
func (s *Service) Current() *Policy {
	return s.current.Load()
}

// Replace validates and swaps in a new policy
func (s *Service) Replace(p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.current.Store(p)
	s.logger.Info("cooldown policy replaced",
		slog.Int("steps", len(p.Steps)),
		slog.String("fallback", p.Fallback.String()),
	)
	return nil
}
