package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/metrics"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/search"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/tracing"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// ErrCancelled is returned when the search context is cancelled between trials.
var ErrCancelled = errors.New("search cancelled")

type OptimizeInput struct {
	RequestID   string
	Family      domain.ModelFamily
	Method      domain.SearchMethod
	Acquisition domain.Acquisition
	Space       domain.SearchSpace
	Budget      int
	Seed        int64
	// Strategy overrides the one built from Method/Space/Budget.
	Strategy    search.Strategy
	Timeout     time.Duration
	Parallelism int
	Data        *domain.Dataset
	SampleRows  int
	// OnTrial runs after every finalized trial, in submission order.
	OnTrial func(trial domain.TrialResult, run *domain.SearchRun)
}

type OptimizeResult struct {
	Run *domain.SearchRun
	// Best is the incumbent outcome, with its model retained; nil when no
	// trial succeeded.
	Best *TrialOutcome
}

type OptimizerService interface {
	Optimize(ctx context.Context, in OptimizeInput) (*OptimizeResult, error)
}

type optimizerService struct {
	runner TrialRunner
	logger *slog.Logger
	now    func() time.Time
}

func NewOptimizerService(runner TrialRunner, logger *slog.Logger) OptimizerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &optimizerService{runner: runner, logger: logger, now: time.Now}
}

func (s *optimizerService) Optimize(ctx context.Context, in OptimizeInput) (*OptimizeResult, error) {
	strategy := in.Strategy
	if strategy == nil {
		var err error
		strategy, err = search.New(search.Config{
			Method:      in.Method,
			Space:       in.Space,
			Budget:      in.Budget,
			Acquisition: in.Acquisition,
			Seed:        in.Seed,
		})
		if err != nil {
			return nil, domain.NewError(domain.KindInput, err)
		}
	}
	if in.Budget < 1 {
		return nil, domain.Errorf(domain.KindInput, "trial budget must be at least 1, got %d", in.Budget)
	}
	if in.Data == nil || in.Data.Len() == 0 {
		return nil, domain.NewError(domain.KindInput, domain.ErrEmptyDataset)
	}

	ctx, span := tracing.Start(ctx, "optimizer", "synth.search.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("synth.request.id", in.RequestID),
		attribute.String("synth.search.method", string(strategy.Method())),
		attribute.Int("synth.search.budget", in.Budget),
	)

	log := s.logger.With("request_id", in.RequestID, "method", strategy.Method(), "budget", in.Budget)
	run := domain.NewSearchRun(in.RequestID, strategy.Method(), in.Acquisition, in.Budget, s.now())

	var deadline time.Time
	if in.Timeout > 0 {
		deadline = s.now().Add(in.Timeout)
	}
	batchSize := 1
	if in.Parallelism > 1 && strategy.Method() != domain.MethodBayesian {
		batchSize = in.Parallelism
	}

	// Trials always run to completion; cancellation is observed between them.
	trialCtx := context.WithoutCancel(ctx)

	var (
		history   []domain.TrialResult
		best      *TrialOutcome
		cancelled bool
		number    int
	)
	for run.Attempted < in.Budget {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if !deadline.IsZero() && !s.now().Before(deadline) {
			run.TimedOut = true
			log.Info("search timed out", "attempted", run.Attempted)
			break
		}

		n := batchSize
		if left := in.Budget - run.Attempted; n > left {
			n = left
		}
		specs := make([]TrialSpec, 0, n)
		for len(specs) < n {
			h, ok := strategy.Next(history)
			if !ok {
				break
			}
			number++
			specs = append(specs, TrialSpec{
				Number:          number,
				Family:          in.Family,
				Hyperparameters: h,
				Data:            in.Data,
				SampleRows:      in.SampleRows,
			})
		}
		if len(specs) == 0 {
			break
		}

		for _, out := range s.runBatch(trialCtx, specs) {
			history = append(history, out.Result)
			if run.Record(out.Result) {
				o := out
				best = &o
			}
			if in.OnTrial != nil {
				in.OnTrial(out.Result, run)
			}
		}
	}

	run.Close(s.now(), cancelled)
	metrics.SearchRunsTotal.WithLabelValues(string(run.Method), string(run.Status)).Inc()
	span.SetAttributes(
		attribute.Int("synth.search.attempted", run.Attempted),
		attribute.Int("synth.search.failed", run.Failed),
		attribute.Bool("synth.search.timed_out", run.TimedOut),
	)
	log.Info("search finished", "status", run.Status, "attempted", run.Attempted, "completed", run.Completed, "best_trial", run.BestTrial)

	res := &OptimizeResult{Run: run, Best: best}
	if cancelled {
		return res, fmt.Errorf("%w after %d trials", ErrCancelled, run.Attempted)
	}
	return res, nil
}

// runBatch runs specs and returns their outcomes in submission order.
func (s *optimizerService) runBatch(ctx context.Context, specs []TrialSpec) []TrialOutcome {
	outs := make([]TrialOutcome, len(specs))
	if len(specs) == 1 {
		outs[0] = s.runner.Run(ctx, specs[0])
		return outs
	}
	p := pool.New().WithMaxGoroutines(len(specs))
	for i := range specs {
		i := i
		p.Go(func() {
			outs[i] = s.runner.Run(ctx, specs[i])
		})
	}
	p.Wait()
	return outs
}
