package cooldown

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tileclaim/internal/testutil"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	tests := []struct {
		rating int
		want   time.Duration
	}{
		{99, 1 * time.Minute},
		{92, 1 * time.Minute},
		{90, 1 * time.Minute},
		{89, 2 * time.Minute},
		{80, 2 * time.Minute},
		{79, 3 * time.Minute},
		{70, 3 * time.Minute},
		{69, 4 * time.Minute},
		{60, 4 * time.Minute},
		{59, 5 * time.Minute},
		{0, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.For(tt.rating), "rating %d", tt.rating)
	}
}

func TestDefaultPolicyIsMonotonic(t *testing.T) {
	p := Default()
	assert.LessOrEqual(t, p.For(95), p.For(65))
	for r := 1; r <= 99; r++ {
		assert.LessOrEqual(t, p.For(r), p.For(r-1), "rating %d cools down slower than %d", r, r-1)
	}
}

func TestValidate(t *testing.T) {
	minute := Duration(time.Minute)
	tests := []struct {
		name   string
		policy Policy
	}{
		{"zero fallback", Policy{}},
		{"non-positive step", Policy{Steps: []Step{{MinRating: 90, Cooldown: 0}}, Fallback: minute}},
		{"step slower than fallback", Policy{Steps: []Step{{MinRating: 90, Cooldown: 2 * minute}}, Fallback: minute}},
		{"ascending thresholds", Policy{Steps: []Step{{MinRating: 60, Cooldown: minute}, {MinRating: 90, Cooldown: minute}}, Fallback: 5 * minute}},
		{"lower rating faster", Policy{Steps: []Step{{MinRating: 90, Cooldown: 2 * minute}, {MinRating: 80, Cooldown: minute}}, Fallback: 5 * minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.policy.Validate())
		})
	}
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(`{"steps":[{"minRating":85,"cooldown":"30s"},{"minRating":50,"cooldown":"2m"}],"fallback":"10m"}`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.For(90))
	assert.Equal(t, 2*time.Minute, p.For(50))
	assert.Equal(t, 10*time.Minute, p.For(49))

	_, err = Parse([]byte(`{"steps":[],"fallback":"soon"}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"steps":[],"fallback":"0s"}`))
	assert.Error(t, err)
}

func TestPolicyRoundTripsThroughJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps":[{"minRating":90,"cooldown":"1m"}],"fallback":"3m"}`), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, p.For(95))
	assert.Equal(t, 3*time.Minute, p.For(10))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestServiceReplace(t *testing.T) {
	s := NewService(nil, testutil.NopLogger())
	assert.Equal(t, time.Minute, s.For(95))

	err := s.Replace(&Policy{Fallback: Duration(10 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, s.For(95))

	err = s.Replace(&Policy{})
	assert.Error(t, err)
	assert.Equal(t, 10*time.Second, s.For(95), "invalid policy must not be applied")
}

func TestServiceConcurrentReads(t *testing.T) {
	s := NewService(Default(), testutil.NopLogger())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.For(75)
		}()
		go func() {
			defer wg.Done()
			_ = s.Replace(Default())
		}()
	}
	wg.Wait()
	assert.Equal(t, 3*time.Minute, s.For(75))
}
