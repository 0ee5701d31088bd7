package cooldown

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Step applies Cooldown to every rating at or above MinRating
type Step struct {
	MinRating int      `json:"minRating"`
	Cooldown  Duration `json:"cooldown"`
}

// Policy maps a tile rating to the wait imposed after claiming it.
// Steps are ordered by descending MinRating; ratings below every step get
// the Fallback.
type Policy struct {
	Steps    []Step   `json:"steps"`
	Fallback Duration `json:"fallback"`
}

// Default returns the standard table: 90+ one minute, then one extra
// minute per ten rating points down to five minutes below 60.
func Default() *Policy {
	return &Policy{
		Steps: []Step{
			{MinRating: 90, Cooldown: Duration(1 * time.Minute)},
			{MinRating: 80, Cooldown: Duration(2 * time.Minute)},
			{MinRating: 70, Cooldown: Duration(3 * time.Minute)},
			{MinRating: 60, Cooldown: Duration(4 * time.Minute)},
		},
		Fallback: Duration(5 * time.Minute),
	}
}

// For returns the cooldown for a tile of the given rating
func (p *Policy) For(rating int) time.Duration {
	for _, step := range p.Steps {
		if rating >= step.MinRating {
			return time.Duration(step.Cooldown)
		}
	}
	return time.Duration(p.Fallback)
}

// Validate checks that the table is a non-increasing step function of rating
func (p *Policy) Validate() error {
	if p.Fallback <= 0 {
		return errors.New("fallback cooldown must be positive")
	}
	for i, step := range p.Steps {
		if step.Cooldown <= 0 {
			return fmt.Errorf("step %d: cooldown must be positive", i)
		}
		if step.Cooldown > p.Fallback {
			return fmt.Errorf("step %d: cooldown %s exceeds fallback %s", i, step.Cooldown, p.Fallback)
		}
		if i == 0 {
			continue
		}
		prev := p.Steps[i-1]
		if step.MinRating >= prev.MinRating {
			return fmt.Errorf("step %d: thresholds must be strictly descending", i)
		}
		if step.Cooldown < prev.Cooldown {
			return fmt.Errorf("step %d: lower ratings may not cool down faster", i)
		}
	}
	return nil
}

// Parse decodes and validates a JSON policy
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cooldown policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cooldown policy: %w", err)
	}
	return &p, nil
}

// LoadFile reads a JSON policy from disk
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Duration is a time.Duration that encodes as a Go duration string ("90s")
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
