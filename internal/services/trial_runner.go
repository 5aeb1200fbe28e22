package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/metrics"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/model"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/quality"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/tracing"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// TrialSpec is one train-sample-score job.
type TrialSpec struct {
	Number          int
	Family          domain.ModelFamily
	Hyperparameters domain.HyperparameterSet
	Data            *domain.Dataset
	// SampleRows defaults to the number of rows in Data.
	SampleRows int
}

// TrialOutcome is the finalized trial record plus the transient artifacts of
// a successful run. Model and Synthetic are nil for failed trials.
type TrialOutcome struct {
	Result    domain.TrialResult
	Model     model.Model
	Synthetic *domain.Dataset
}

type TrialRunner interface {
	Run(ctx context.Context, spec TrialSpec) TrialOutcome
}

type trialRunner struct {
	trainer model.Trainer
	scorer  quality.Scorer
	logger  *slog.Logger
	now     func() time.Time
}

func NewTrialRunner(trainer model.Trainer, scorer quality.Scorer, logger *slog.Logger) TrialRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &trialRunner{trainer: trainer, scorer: scorer, logger: logger, now: time.Now}
}

// Run never returns an error: training and sampling failures, including
// panics, become a failed trial. A scoring failure keeps the trial completed
// with score 0.
func (r *trialRunner) Run(ctx context.Context, spec TrialSpec) TrialOutcome {
	ctx, span := tracing.Start(ctx, "trial", "synth.trial.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("synth.trial.number", spec.Number),
		attribute.String("synth.model.family", string(spec.Family)),
		attribute.String("synth.trial.params", spec.Hyperparameters.Key()),
	)

	trial := domain.NewTrial(spec.Number, spec.Hyperparameters, r.now())
	log := r.logger.With("trial", spec.Number, "family", spec.Family, "params", spec.Hyperparameters.String())

	rows := spec.SampleRows
	if rows <= 0 {
		rows = spec.Data.Len()
	}
	params := spec.Hyperparameters
	if schema, ok := model.Lookup(spec.Family); ok {
		params = schema.Complete(params)
	}

	m, synthetic, err := r.trainAndSample(ctx, spec.Family, params, spec.Data, rows)
	if err != nil {
		log.Warn("trial failed", "err", err)
		tracing.Fail(span, err)
		out := TrialOutcome{Result: trial.Fail(err.Error(), r.now())}
		r.observe(spec.Family, out.Result)
		return out
	}

	score, err := r.scorer.Score(ctx, spec.Data, synthetic)
	if err != nil {
		log.Warn("scoring failed; recording score 0", "err", err)
		score = 0
	}
	span.SetAttributes(attribute.Float64("synth.trial.score", score))
	log.Info("trial completed", "score", score)

	out := TrialOutcome{Result: trial.Finish(score, r.now()), Model: m, Synthetic: synthetic}
	r.observe(spec.Family, out.Result)
	return out
}

func (r *trialRunner) trainAndSample(ctx context.Context, family domain.ModelFamily, h domain.HyperparameterSet, data *domain.Dataset, rows int) (m model.Model, synthetic *domain.Dataset, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("trial panicked", "panic", p, "stack", string(debug.Stack()))
			m, synthetic, err = nil, nil, fmt.Errorf("trial panicked: %v", p)
		}
	}()

	m, err = r.trainer.Train(ctx, family, h, data)
	if err != nil {
		return nil, nil, fmt.Errorf("train: %w", err)
	}
	synthetic, err = m.Sample(ctx, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("sample: %w", err)
	}
	if synthetic == nil || synthetic.Len() == 0 {
		return nil, nil, fmt.Errorf("sample: model produced no rows")
	}
	return m, synthetic, nil
}

func (r *trialRunner) observe(family domain.ModelFamily, t domain.TrialResult) {
	metrics.TrialsTotal.WithLabelValues(string(family), string(t.Status)).Inc()
	metrics.TrialDurationSeconds.WithLabelValues(string(family)).Observe(t.ElapsedSeconds)
}
