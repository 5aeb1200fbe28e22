package model

import (
	"context"
	"fmt"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// Model is a trained generator. It lives only as long as the workflow that
// trained it.
type Model interface {
	Sample(ctx context.Context, rows int) (*domain.Dataset, error)
}

// Trainer fits a model of the given family to data.
type Trainer interface {
	Train(ctx context.Context, family domain.ModelFamily, h domain.HyperparameterSet, data *domain.Dataset) (Model, error)
}

type TrainerConfig struct {
	Provider       string
	URL            string
	TimeoutSeconds int
	Seed           int64
}

// NewTrainer builds the backend selected by cfg.Provider.
func NewTrainer(cfg TrainerConfig) (Trainer, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalTrainer(cfg.Seed), nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("trainer url is required for the http provider")
		}
		return NewHTTPTrainer(cfg.URL, cfg.TimeoutSeconds), nil
	default:
		return nil, fmt.Errorf("unknown trainer provider: %s", cfg.Provider)
	}
}
