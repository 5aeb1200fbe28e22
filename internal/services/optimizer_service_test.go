package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

func newOptimizer(score func(h domain.HyperparameterSet) (float64, error)) (*optimizerService, *scoreTrainer) {
	trainer := &scoreTrainer{score: score}
	runner := NewTrialRunner(trainer, scoreReader{}, quietLogger())
	return NewOptimizerService(runner, quietLogger()).(*optimizerService), trainer
}

// Five trials: #2 fails in train, the others score 0.4, 0.6, 0.6, 0.3.
var fiveTrialScores = map[int]float64{100: 0.4, 300: 0.6, 400: 0.6, 500: 0.3}

func fiveTrialInput() OptimizeInput {
	return OptimizeInput{
		RequestID: "r1",
		Family:    domain.FamilyCTGAN,
		Method:    domain.MethodGrid,
		Space:     domain.NewSearchSpace(domain.NumericChoices("epochs", 100, 200, 300, 400, 500)),
		Budget:    5,
		Data:      testDataset(20),
	}
}

func TestOptimizeFiveTrialScenario(t *testing.T) {
	for _, parallelism := range []int{1, 3} {
		opt, _ := newOptimizer(scoreByEpochs(fiveTrialScores))
		in := fiveTrialInput()
		in.Parallelism = parallelism

		var bestSeen []float64
		var order []int
		in.OnTrial = func(tr domain.TrialResult, run *domain.SearchRun) {
			order = append(order, tr.Number)
			if run.BestScore != nil {
				bestSeen = append(bestSeen, *run.BestScore)
			}
		}

		res, err := opt.Optimize(context.Background(), in)
		if err != nil {
			t.Fatalf("parallelism %d: Optimize: %v", parallelism, err)
		}
		run := res.Run
		if run.Attempted != 5 || run.Completed != 4 || run.Failed != 1 {
			t.Fatalf("parallelism %d: unexpected counters %+v", parallelism, run.Header())
		}
		if run.BestTrial != 3 || run.BestScore == nil || *run.BestScore != 0.6 {
			t.Fatalf("parallelism %d: expected trial 3 with 0.6, got %d %v", parallelism, run.BestTrial, run.BestScore)
		}
		if run.Status != domain.RunCompleted {
			t.Fatalf("parallelism %d: expected completed run, got %s", parallelism, run.Status)
		}
		if res.Best == nil || res.Best.Result.Number != 3 || res.Best.Model == nil {
			t.Fatalf("parallelism %d: incumbent must be trial 3 with its model", parallelism)
		}
		for i, n := range order {
			if n != i+1 {
				t.Fatalf("parallelism %d: trials folded out of order: %v", parallelism, order)
			}
		}
		for i := 1; i < len(bestSeen); i++ {
			if bestSeen[i] < bestSeen[i-1] {
				t.Fatalf("parallelism %d: best score decreased: %v", parallelism, bestSeen)
			}
		}
	}
}

func TestOptimizeAllTrialsFail(t *testing.T) {
	opt, trainer := newOptimizer(scoreByEpochs(map[int]float64{}))
	res, err := opt.Optimize(context.Background(), fiveTrialInput())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Best != nil {
		t.Fatalf("expected no winner")
	}
	if res.Run.Status != domain.RunFailed || res.Run.Failed != 5 || res.Run.Attempted != 5 {
		t.Fatalf("unexpected run %+v", res.Run.Header())
	}
	if len(trainer.Calls()) != 5 {
		t.Fatalf("a failure must not stop later trials, got %d calls", len(trainer.Calls()))
	}
}

func TestOptimizeStopsWhenStrategyExhausted(t *testing.T) {
	opt, _ := newOptimizer(scoreByEpochs(fiveTrialScores))
	in := fiveTrialInput()
	in.Space = domain.NewSearchSpace(domain.NumericChoices("epochs", 100, 300))
	in.Budget = 10

	res, err := opt.Optimize(context.Background(), in)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Run.Attempted != 2 || res.Run.RequestedTrials != 10 {
		t.Fatalf("expected 2 of 10 trials, got %+v", res.Run.Header())
	}
}

func TestOptimizeCancelledBetweenTrials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opt, trainer := newOptimizer(scoreByEpochs(fiveTrialScores))
	trainer.onCall = func(call int, h domain.HyperparameterSet) {
		if call == 1 {
			cancel()
		}
	}
	res, err := opt.Optimize(ctx, fiveTrialInput())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if res == nil || res.Run.Status != domain.RunCancelled {
		t.Fatalf("expected cancelled run, got %+v", res)
	}
	// The running trial finishes; no further trial starts.
	if res.Run.Attempted != 1 || res.Run.Completed != 1 {
		t.Fatalf("expected exactly the in-flight trial, got %+v", res.Run.Header())
	}
}

func TestOptimizeTimeout(t *testing.T) {
	clock := &steppedClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opt, _ := newOptimizer(scoreByEpochs(fiveTrialScores))
	opt.now = clock.Now

	in := fiveTrialInput()
	in.Timeout = 150 * time.Second
	in.OnTrial = func(domain.TrialResult, *domain.SearchRun) { clock.Advance(time.Minute) }

	res, err := opt.Optimize(context.Background(), in)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !res.Run.TimedOut || res.Run.Attempted != 3 {
		t.Fatalf("expected timeout after 3 trials, got %+v", res.Run.Header())
	}
	if res.Run.Status != domain.RunCompleted {
		t.Fatalf("timeout behaves like exhaustion, got %s", res.Run.Status)
	}
}

func TestOptimizeBayesianIsSequential(t *testing.T) {
	opt, trainer := newOptimizer(func(h domain.HyperparameterSet) (float64, error) {
		e, _ := h.Float("epochs")
		return 1 - (e-600)*(e-600)/1e6, nil
	})
	res, err := opt.Optimize(context.Background(), OptimizeInput{
		RequestID:   "r1",
		Family:      domain.FamilyCTGAN,
		Method:      domain.MethodBayesian,
		Acquisition: domain.AcquisitionEI,
		Space:       domain.NewSearchSpace(domain.IntRange("epochs", 50, 1000)),
		Budget:      6,
		Seed:        7,
		Parallelism: 4,
		Data:        testDataset(20),
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Run.Attempted != 6 || len(trainer.Calls()) != 6 {
		t.Fatalf("expected 6 trials, got %d", res.Run.Attempted)
	}
	if res.Run.Method != domain.MethodBayesian || res.Run.Acquisition != domain.AcquisitionEI {
		t.Fatalf("unexpected run method %s/%s", res.Run.Method, res.Run.Acquisition)
	}
}

func TestOptimizeRejectsInvalidInput(t *testing.T) {
	opt, _ := newOptimizer(scoreByEpochs(fiveTrialScores))
	in := fiveTrialInput()
	in.Budget = 0
	if _, err := opt.Optimize(context.Background(), in); !domain.IsKind(err, domain.KindInput) {
		t.Fatalf("expected input error for zero budget, got %v", err)
	}

	in = fiveTrialInput()
	in.Method = "annealing"
	if _, err := opt.Optimize(context.Background(), in); !domain.IsKind(err, domain.KindInput) {
		t.Fatalf("expected input error for unknown method, got %v", err)
	}
}
