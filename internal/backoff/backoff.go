package backoff

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy names accepted in config.
const (
	Fixed          = "fixed"
	Linear         = "linear"
	Exponential    = "exponential"
	ExpEqualJitter = "exp_equal_jitter"
	ExpFullJitter  = "exp_full_jitter"
)

const (
	defaultBaseSeconds = 2
	defaultMaxSeconds  = 60
)

// Policy is a named delay schedule for retried webhook deliveries.
type Policy struct {
	Name        string `yaml:"name" json:"name"`
	BaseSeconds int    `yaml:"baseSeconds" json:"baseSeconds"`
	MaxSeconds  int    `yaml:"maxSeconds" json:"maxSeconds"`
}

// WithDefaults fills unset fields. An empty name means exp_full_jitter.
func (p Policy) WithDefaults() Policy {
	if p.Name == "" {
		p.Name = ExpFullJitter
	}
	if p.BaseSeconds <= 0 {
		p.BaseSeconds = defaultBaseSeconds
	}
	if p.MaxSeconds <= 0 {
		p.MaxSeconds = defaultMaxSeconds
	}
	if p.MaxSeconds < p.BaseSeconds {
		p.MaxSeconds = p.BaseSeconds
	}
	return p
}

// Validate rejects unknown policy names.
func (p Policy) Validate() error {
	switch p.Name {
	case "", Fixed, Linear, Exponential, ExpEqualJitter, ExpFullJitter:
		return nil
	}
	return fmt.Errorf("unknown backoff policy %q", p.Name)
}

// Delay returns the wait before retry number attempt (1-based). Jittered
// policies draw from rng; a nil rng uses a fixed seed.
func (p Policy) Delay(attempt int, rng *rand.Rand) time.Duration {
	p = p.WithDefaults()
	if attempt < 1 {
		attempt = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return time.Duration(p.seconds(attempt-1, rng)) * time.Second
}

// seconds computes the delay for the n-th retry counted from zero.
func (p Policy) seconds(n int, rng *rand.Rand) int {
	ceiling := p.exponential(n)
	switch p.Name {
	case Fixed:
		return p.BaseSeconds
	case Linear:
		return min(p.BaseSeconds*max(1, n), p.MaxSeconds)
	case Exponential:
		return ceiling
	case ExpEqualJitter:
		half := ceiling / 2
		return half + rng.Intn(ceiling-half+1)
	default:
		return rng.Intn(ceiling + 1)
	}
}

func (p Policy) exponential(n int) int {
	d := float64(p.BaseSeconds) * math.Pow(2, float64(n))
	if d > float64(p.MaxSeconds) {
		return p.MaxSeconds
	}
	return int(d)
}
