// Package search proposes hyperparameter configurations for a search run.
package search

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

var ErrUnknownMethod = errors.New("unknown search method")

// Strategy yields at most Budget configurations, lazily. It is finite and
// cannot be restarted. history holds every finalized trial so far, in
// submission order.
type Strategy interface {
	Next(history []domain.TrialResult) (domain.HyperparameterSet, bool)
	Method() domain.SearchMethod
}

type Config struct {
	Method      domain.SearchMethod
	Space       domain.SearchSpace
	Budget      int
	Acquisition domain.Acquisition
	Seed        int64
	GridPoints  int
}

func New(cfg Config) (Strategy, error) {
	if err := cfg.Space.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search space: %w", err)
	}
	if cfg.Budget < 1 {
		return nil, fmt.Errorf("trial budget must be at least 1, got %d", cfg.Budget)
	}
	if cfg.GridPoints < 2 {
		cfg.GridPoints = domain.DefaultGridPoints
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	switch cfg.Method {
	case domain.MethodGrid:
		return newGrid(cfg.Space, cfg.Budget, cfg.GridPoints), nil
	case domain.MethodRandom:
		return newRandom(cfg.Space, cfg.Budget, cfg.GridPoints, rng), nil
	case domain.MethodBayesian:
		if cfg.Acquisition == "" {
			cfg.Acquisition = domain.AcquisitionEI
		}
		if !cfg.Acquisition.Valid() {
			return nil, fmt.Errorf("unknown acquisition function %q", cfg.Acquisition)
		}
		return newBayesian(cfg.Space, cfg.Budget, cfg.Acquisition, rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}
}

// Drain pulls every configuration from s with an empty history. Useful for
// strategies that ignore history.
func Drain(s Strategy) []domain.HyperparameterSet {
	var out []domain.HyperparameterSet
	for {
		h, ok := s.Next(nil)
		if !ok {
			return out
		}
		out = append(out, h)
	}
}
