package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestPolicyDelayDeterministic(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"fixed first", Policy{Name: Fixed, BaseSeconds: 5, MaxSeconds: 30}, 1, 5 * time.Second},
		{"fixed later", Policy{Name: Fixed, BaseSeconds: 5, MaxSeconds: 30}, 9, 5 * time.Second},
		{"linear first retry", Policy{Name: Linear, BaseSeconds: 3, MaxSeconds: 100}, 1, 3 * time.Second},
		{"linear third retry", Policy{Name: Linear, BaseSeconds: 3, MaxSeconds: 100}, 4, 9 * time.Second},
		{"linear capped", Policy{Name: Linear, BaseSeconds: 3, MaxSeconds: 10}, 20, 10 * time.Second},
		{"exponential first", Policy{Name: Exponential, BaseSeconds: 2, MaxSeconds: 60}, 1, 2 * time.Second},
		{"exponential fourth", Policy{Name: Exponential, BaseSeconds: 2, MaxSeconds: 60}, 4, 16 * time.Second},
		{"exponential capped", Policy{Name: Exponential, BaseSeconds: 2, MaxSeconds: 60}, 30, 60 * time.Second},
		{"attempt below one", Policy{Name: Exponential, BaseSeconds: 2, MaxSeconds: 60}, 0, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Delay(tt.attempt, nil); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestPolicyJitterStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	full := Policy{Name: ExpFullJitter, BaseSeconds: 2, MaxSeconds: 20}
	equal := Policy{Name: ExpEqualJitter, BaseSeconds: 2, MaxSeconds: 20}

	for attempt := 1; attempt <= 8; attempt++ {
		ceiling := full.exponential(attempt - 1)
		for i := 0; i < 50; i++ {
			d := full.Delay(attempt, rng)
			if d < 0 || d > time.Duration(ceiling)*time.Second {
				t.Fatalf("full jitter attempt %d: %v outside [0,%ds]", attempt, d, ceiling)
			}
			e := equal.Delay(attempt, rng)
			if e < time.Duration(ceiling/2)*time.Second || e > time.Duration(ceiling)*time.Second {
				t.Fatalf("equal jitter attempt %d: %v outside [%ds,%ds]", attempt, e, ceiling/2, ceiling)
			}
		}
	}
}

func TestPolicyJitterSeedReproducible(t *testing.T) {
	p := Policy{Name: ExpFullJitter, BaseSeconds: 1, MaxSeconds: 300}
	a := rand.New(rand.NewSource(99))
	b := rand.New(rand.NewSource(99))
	for attempt := 1; attempt <= 10; attempt++ {
		if x, y := p.Delay(attempt, a), p.Delay(attempt, b); x != y {
			t.Fatalf("attempt %d: %v != %v with the same seed", attempt, x, y)
		}
	}
}

func TestPolicyWithDefaults(t *testing.T) {
	p := Policy{}.WithDefaults()
	if p.Name != ExpFullJitter || p.BaseSeconds != defaultBaseSeconds || p.MaxSeconds != defaultMaxSeconds {
		t.Fatalf("unexpected defaults %+v", p)
	}

	p = Policy{Name: Fixed, BaseSeconds: 90, MaxSeconds: 10}.WithDefaults()
	if p.MaxSeconds != 90 {
		t.Fatalf("max below base should be raised to base, got %+v", p)
	}
}

func TestPolicyValidate(t *testing.T) {
	for _, name := range []string{"", Fixed, Linear, Exponential, ExpEqualJitter, ExpFullJitter} {
		if err := (Policy{Name: name}).Validate(); err != nil {
			t.Errorf("Validate(%q) = %v", name, err)
		}
	}
	if err := (Policy{Name: "fibonacci"}).Validate(); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
