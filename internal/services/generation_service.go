package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/metrics"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/model"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/providers"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/tracing"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

var (
	ErrNotFound       = errors.New("generation request not found")
	ErrAlreadyStarted = errors.New("generation request already started")
	ErrTerminal       = errors.New("generation request already finished")
	ErrNotReady       = errors.New("generation request has no downloadable artifact")
	ErrNotRetryable   = errors.New("only failed or cancelled requests can be retried")
)

// Scheduler runs Process for enqueued request ids in the background.
type Scheduler interface {
	Enqueue(id string) (*TaskHandle, error)
	Cancel(id string) bool
}

type SubmitInput struct {
	UserID          string
	DatasetKey      string
	DatasetName     string
	Family          domain.ModelFamily
	SampleSize      int
	Mode            domain.Mode
	Hyperparameters domain.HyperparameterSet
	Optimization    *domain.OptimizationConfig
	RetryOf         string
}

type GenerationConfig struct {
	MinSampleSize  int
	MaxSampleSize  int
	MaxTrials      int
	MaxParallelism int
	// DefaultTimeout bounds a search when the request sets no timeout.
	DefaultTimeout time.Duration
	DownloadURLTTL time.Duration
}

func (c GenerationConfig) withDefaults() GenerationConfig {
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = 100
	}
	if c.MaxSampleSize <= 0 {
		c.MaxSampleSize = 100000
	}
	if c.MaxTrials <= 0 {
		c.MaxTrials = 50
	}
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = 4
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = time.Hour
	}
	if c.DownloadURLTTL <= 0 {
		c.DownloadURLTTL = 15 * time.Minute
	}
	return c
}

type GenerationService interface {
	Submit(ctx context.Context, in SubmitInput) (*domain.GenerationRequest, error)
	Process(ctx context.Context, id string) error
	Cancel(ctx context.Context, userID, id string) (*domain.GenerationRequest, error)
	Get(ctx context.Context, userID, id string) (*domain.GenerationRequest, error)
	List(ctx context.Context, userID string, status domain.RequestStatus, page, pageSize int) ([]*domain.GenerationRequest, int, error)
	SearchRun(ctx context.Context, userID, id string) (*domain.SearchRun, error)
	DownloadURL(ctx context.Context, userID, id string) (string, time.Time, error)
	Retry(ctx context.Context, userID, id string) (*domain.GenerationRequest, error)
	Recover(ctx context.Context) (requeued int, interrupted int, err error)
}

type generationService struct {
	requests  persistence.RequestStorage
	trials    persistence.TrialStorage
	store     providers.ArtifactStore
	runner    TrialRunner
	optimizer OptimizerService
	scheduler Scheduler
	notifier  NotificationSink
	logger    *slog.Logger
	cfg       GenerationConfig
	now       func() time.Time
}

func NewGenerationService(
	requests persistence.RequestStorage,
	trials persistence.TrialStorage,
	store providers.ArtifactStore,
	runner TrialRunner,
	optimizer OptimizerService,
	scheduler Scheduler,
	notifier NotificationSink,
	logger *slog.Logger,
	cfg GenerationConfig,
) GenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &generationService{
		requests:  requests,
		trials:    trials,
		store:     store,
		runner:    runner,
		optimizer: optimizer,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// ===== Submit =====

func (s *generationService) Submit(ctx context.Context, in SubmitInput) (*domain.GenerationRequest, error) {
	req, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	req.ID = uuid.NewString()
	req.Status = domain.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now
	req.TraceParent, req.TraceState = tracing.TraceContextStrings(ctx)

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	metrics.RequestsSubmittedTotal.WithLabelValues(string(req.Family), string(req.Mode)).Inc()
	s.logger.Info("generation submitted", "request_id", req.ID, "user", req.UserID, "family", req.Family, "mode", req.Mode)

	if _, err := s.scheduler.Enqueue(req.ID); err != nil {
		// Nothing will pick the request up; close it so the caller can retry.
		s.fail(ctx, req, []domain.RequestStatus{domain.StatusPending}, domain.Errorf(domain.KindInternal, "could not schedule: %v", err))
		return nil, err
	}
	return req, nil
}

func (s *generationService) validate(in SubmitInput) (*domain.GenerationRequest, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, domain.Errorf(domain.KindInput, "user id is required")
	}
	schema, ok := model.Lookup(in.Family)
	if !ok {
		return nil, domain.Errorf(domain.KindInput, "unsupported model type %q", in.Family)
	}
	if in.SampleSize < s.cfg.MinSampleSize || in.SampleSize > s.cfg.MaxSampleSize {
		return nil, domain.Errorf(domain.KindInput, "sample size must be between %d and %d, got %d", s.cfg.MinSampleSize, s.cfg.MaxSampleSize, in.SampleSize)
	}
	key, err := providers.CleanKey(in.DatasetKey)
	if err != nil {
		return nil, domain.Errorf(domain.KindInput, "invalid dataset key: %v", err)
	}
	if !strings.HasPrefix(key, "datasets/"+in.UserID+"/") {
		return nil, domain.Errorf(domain.KindInput, "dataset %q does not belong to the user", in.DatasetKey)
	}

	mode := in.Mode
	if mode == "" {
		mode = domain.ModeSimple
		if in.Optimization != nil {
			mode = domain.ModeOptimization
		}
	}

	req := &domain.GenerationRequest{
		UserID:      in.UserID,
		DatasetKey:  key,
		DatasetName: in.DatasetName,
		Family:      in.Family,
		SampleSize:  in.SampleSize,
		Mode:        mode,
		RetryOf:     in.RetryOf,
	}
	if req.DatasetName == "" {
		req.DatasetName = key[strings.LastIndex(key, "/")+1:]
	}
	if in.Hyperparameters.Len() > 0 {
		if err := schema.Validate(in.Hyperparameters); err != nil {
			return nil, domain.NewError(domain.KindInput, err)
		}
		req.Hyperparameters = in.Hyperparameters
	}

	switch mode {
	case domain.ModeSimple:
		if in.Hyperparameters.Len() == 0 {
			return nil, domain.Errorf(domain.KindInput, "simple mode requires hyperparameters")
		}
	case domain.ModeOptimization:
		opt, err := s.validateOptimization(schema, in.Optimization)
		if err != nil {
			return nil, err
		}
		req.Optimization = opt
	default:
		return nil, domain.Errorf(domain.KindInput, "unsupported mode %q", mode)
	}
	return req, nil
}

func (s *generationService) validateOptimization(schema model.Schema, in *domain.OptimizationConfig) (*domain.OptimizationConfig, error) {
	if in == nil {
		return nil, domain.Errorf(domain.KindInput, "optimization mode requires an optimization config")
	}
	opt := *in
	if !opt.Method.Valid() {
		return nil, domain.Errorf(domain.KindInput, "unsupported search method %q", opt.Method)
	}
	if opt.NTrials < 1 || opt.NTrials > s.cfg.MaxTrials {
		return nil, domain.Errorf(domain.KindInput, "nTrials must be between 1 and %d, got %d", s.cfg.MaxTrials, opt.NTrials)
	}
	if opt.Space.Len() == 0 {
		for _, name := range opt.OptimizeParams {
			if !schema.Allows(name) {
				return nil, domain.Errorf(domain.KindInput, "parameter %q is not supported by %s", name, schema.Family)
			}
		}
		opt.Space = schema.SpaceFor(opt.OptimizeParams)
		if opt.Space.Len() == 0 {
			return nil, domain.Errorf(domain.KindInput, "no searchable parameters in %v", opt.OptimizeParams)
		}
	} else if err := schema.ValidateSpace(opt.Space); err != nil {
		return nil, domain.NewError(domain.KindInput, err)
	}
	if err := opt.Space.Validate(); err != nil {
		return nil, domain.Errorf(domain.KindInput, "invalid search space: %v", err)
	}
	if opt.Method == domain.MethodBayesian {
		if opt.Acquisition == "" {
			opt.Acquisition = domain.AcquisitionEI
		}
		if !opt.Acquisition.Valid() {
			return nil, domain.Errorf(domain.KindInput, "unsupported acquisition function %q", opt.Acquisition)
		}
	} else {
		opt.Acquisition = ""
	}
	if opt.TimeoutSeconds < 0 {
		return nil, domain.Errorf(domain.KindInput, "timeoutSeconds must not be negative")
	}
	if opt.Parallelism < 1 {
		opt.Parallelism = 1
	}
	if opt.Parallelism > s.cfg.MaxParallelism {
		opt.Parallelism = s.cfg.MaxParallelism
	}
	return &opt, nil
}

// ===== Process =====

// generated is the outcome of a successful run, before it is persisted.
type generated struct {
	params    domain.HyperparameterSet
	score     float64
	synthetic *domain.Dataset
	optimized bool
	attempted bool
}

func (s *generationService) Process(ctx context.Context, id string) (err error) {
	started := s.now().UTC()
	req, err := s.requests.Transition(ctx, id, []domain.RequestStatus{domain.StatusPending}, domain.StatusProcessing, func(r *domain.GenerationRequest) {
		r.StartedAt = &started
		r.UpdatedAt = started
	})
	if err != nil {
		return s.startError(ctx, id, err)
	}

	ctx = tracing.ContextWithRemoteParent(ctx, req.TraceParent, req.TraceState)
	ctx, span := tracing.Start(ctx, "workflow", "synth.generation.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("synth.request.id", req.ID),
		attribute.String("synth.model.family", string(req.Family)),
		attribute.String("synth.mode", string(req.Mode)),
	)

	log := s.logger.With("request_id", req.ID, "family", req.Family, "mode", req.Mode)
	defer func() {
		if p := recover(); p != nil {
			log.Error("generation panicked", "panic", p, "stack", string(debug.Stack()))
			tracing.Fail(span, fmt.Errorf("panic: %v", p))
			if ferr := s.fail(ctx, req, []domain.RequestStatus{domain.StatusProcessing}, domain.Errorf(domain.KindInternal, "internal error while processing")); ferr != nil {
				log.Warn("could not fail panicked request", "err", ferr)
			}
			err = fmt.Errorf("generation %s panicked: %v", req.ID, p)
		}
	}()
	log.Info("generation started")
	s.notify(ctx, req, domain.NotifyStarted, "generation started", nil)

	out, runErr := s.execute(ctx, req, log)

	switch {
	case runErr == nil && ctx.Err() == nil:
		err = s.complete(ctx, req, out, started, log)
	case errors.Is(context.Cause(ctx), ErrShutdown):
		err = s.requeue(ctx, req, log)
	case ctx.Err() != nil || errors.Is(runErr, ErrCancelled):
		err = s.cancelled(ctx, req, log)
	default:
		tracing.Fail(span, runErr)
		log.Warn("generation failed", "kind", domain.KindOf(runErr), "err", runErr)
		err = s.fail(ctx, req, []domain.RequestStatus{domain.StatusProcessing}, runErr)
	}
	return err
}

func (s *generationService) startError(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrStatusConflict):
		cur, gerr := s.requests.Get(ctx, id)
		if gerr == nil && cur.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, id, cur.Status)
		}
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, id)
	default:
		return fmt.Errorf("start request %s: %w", id, err)
	}
}

func (s *generationService) execute(ctx context.Context, req *domain.GenerationRequest, log *slog.Logger) (*generated, error) {
	data, err := s.loadDataset(ctx, req.DatasetKey)
	if err != nil {
		return nil, err
	}
	schema, _ := model.Lookup(req.Family)
	trialCtx := context.WithoutCancel(ctx)

	var out *generated
	switch req.Mode {
	case domain.ModeSimple:
		res := s.runner.Run(trialCtx, TrialSpec{
			Number:          1,
			Family:          req.Family,
			Hyperparameters: req.Hyperparameters,
			Data:            data,
			SampleRows:      req.SampleSize,
		})
		if !res.Result.Succeeded() {
			return nil, domain.Errorf(domain.KindTrial, "training failed: %s", res.Result.Error)
		}
		out = &generated{params: schema.Complete(req.Hyperparameters), score: *res.Result.Score, synthetic: res.Synthetic}
		if err := s.resample(trialCtx, out, res, req.SampleSize); err != nil {
			return nil, err
		}

	case domain.ModeOptimization:
		out, err = s.optimize(ctx, req, data, schema, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.Errorf(domain.KindInput, "unsupported mode %q", req.Mode)
	}

	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	return out, nil
}

func (s *generationService) loadDataset(ctx context.Context, key string) (*domain.Dataset, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			return nil, domain.Errorf(domain.KindInput, "dataset %s not found", key)
		}
		return nil, domain.Errorf(domain.KindInput, "dataset %s could not be read: %v", key, err)
	}
	data, err := domain.ParseCSVBytes(raw)
	if err != nil {
		return nil, domain.Errorf(domain.KindInput, "dataset %s is not valid: %v", key, err)
	}
	return data, nil
}

func (s *generationService) optimize(ctx context.Context, req *domain.GenerationRequest, data *domain.Dataset, schema model.Schema, log *slog.Logger) (*generated, error) {
	opt := req.Optimization
	timeout := time.Duration(opt.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	persistCtx := context.WithoutCancel(ctx)

	// A requeued request reruns its search from trial 1; records of the
	// interrupted attempt would shadow the new ones.
	if err := s.trials.ResetTrials(persistCtx, req.ID); err != nil {
		return nil, domain.Errorf(domain.KindInternal, "reset trial log: %v", err)
	}

	res, err := s.optimizer.Optimize(ctx, OptimizeInput{
		RequestID:   req.ID,
		Family:      req.Family,
		Method:      opt.Method,
		Acquisition: opt.Acquisition,
		Space:       opt.Space,
		Budget:      opt.NTrials,
		Seed:        opt.Seed,
		Timeout:     timeout,
		Parallelism: opt.Parallelism,
		Data:        data,
		OnTrial: func(t domain.TrialResult, run *domain.SearchRun) {
			if err := s.trials.RecordTrial(persistCtx, req.ID, t); err != nil {
				log.Warn("record trial failed", "trial", t.Number, "err", err)
			}
			if err := s.trials.SaveRun(persistCtx, run); err != nil {
				log.Warn("save search run failed", "err", err)
			}
		},
	})
	if res != nil {
		if serr := s.trials.SaveRun(persistCtx, res.Run); serr != nil {
			log.Warn("save search run failed", "err", serr)
		}
	}
	if err != nil {
		return nil, err
	}

	trialCtx := context.WithoutCancel(ctx)
	if res.Best != nil {
		out := &generated{
			params:    schema.Complete(res.Best.Result.Hyperparameters),
			score:     *res.Best.Result.Score,
			synthetic: res.Best.Synthetic,
			optimized: true,
			attempted: true,
		}
		if err := s.resample(trialCtx, out, *res.Best, req.SampleSize); err != nil {
			return nil, err
		}
		return out, nil
	}

	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	metrics.FallbacksTotal.WithLabelValues(string(req.Family)).Inc()
	log.Warn("every trial failed; falling back to default hyperparameters", "attempted", res.Run.Attempted)
	fb := s.runner.Run(trialCtx, TrialSpec{
		Number:          res.Run.Attempted + 1,
		Family:          req.Family,
		Hyperparameters: schema.Defaults,
		Data:            data,
		SampleRows:      req.SampleSize,
	})
	if !fb.Result.Succeeded() {
		return nil, domain.Errorf(domain.KindSearchExhausted, "all %d trials failed and the default configuration failed too: %s", res.Run.Attempted, fb.Result.Error)
	}
	out := &generated{params: schema.Defaults, score: *fb.Result.Score, synthetic: fb.Synthetic, attempted: true}
	if err := s.resample(trialCtx, out, fb, req.SampleSize); err != nil {
		return nil, err
	}
	return out, nil
}

// resample draws sampleSize rows from the winning model when the trial
// sampled a different number of rows.
func (s *generationService) resample(ctx context.Context, out *generated, win TrialOutcome, sampleSize int) error {
	if out.synthetic != nil && out.synthetic.Len() == sampleSize {
		return nil
	}
	if win.Model == nil {
		return domain.Errorf(domain.KindTrial, "winning trial %d retained no model", win.Result.Number)
	}
	synthetic, err := win.Model.Sample(ctx, sampleSize)
	if err != nil {
		return domain.Errorf(domain.KindTrial, "sampling %d rows from the winning model: %v", sampleSize, err)
	}
	if synthetic == nil || synthetic.Len() == 0 {
		return domain.Errorf(domain.KindTrial, "winning model produced no rows")
	}
	out.synthetic = synthetic
	return nil
}

func (s *generationService) complete(ctx context.Context, req *domain.GenerationRequest, out *generated, started time.Time, log *slog.Logger) error {
	csv, err := out.synthetic.EncodeCSV()
	if err != nil {
		return s.fail(ctx, req, []domain.RequestStatus{domain.StatusProcessing}, domain.Errorf(domain.KindArtifact, "encode synthetic data: %v", err))
	}
	key := domain.ArtifactKeyFor(req.UserID, req.ID)
	if _, err := s.store.Put(ctx, key, "text/csv", csv); err != nil {
		log.Error("artifact upload failed", "key", key, "err", err)
		return s.fail(ctx, req, []domain.RequestStatus{domain.StatusProcessing}, domain.Errorf(domain.KindArtifact, "synthetic data was generated but could not be delivered: %v", err))
	}

	now := s.now().UTC()
	score := out.score
	done, err := s.requests.Transition(ctx, req.ID, []domain.RequestStatus{domain.StatusProcessing}, domain.StatusCompleted, func(r *domain.GenerationRequest) {
		r.FinalHyperparameters = out.params
		r.QualityScore = &score
		r.ArtifactKey = key
		r.Optimized = out.optimized
		r.OptimizationAttempted = out.attempted
		r.GenerationSeconds = now.Sub(started).Seconds()
		r.CompletedAt = &now
		r.UpdatedAt = now
	})
	if err != nil {
		if errors.Is(err, persistence.ErrStatusConflict) {
			// Typically a cancel that landed after the upload.
			log.Info("request changed while generating; keeping its terminal status")
			if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
				log.Warn("orphaned artifact not deleted", "key", key, "err", derr)
			}
			return nil
		}
		return fmt.Errorf("complete request %s: %w", req.ID, err)
	}
	s.observe(done)
	log.Info("generation completed", "score", score, "optimized", out.optimized, "seconds", done.GenerationSeconds)
	s.notify(ctx, done, domain.NotifyCompleted, fmt.Sprintf("generation completed with quality score %.4f", score), &score)
	return nil
}

func (s *generationService) fail(ctx context.Context, req *domain.GenerationRequest, from []domain.RequestStatus, cause error) error {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	kind := domain.KindOf(cause)
	failed, err := s.requests.Transition(ctx, req.ID, from, domain.StatusFailed, func(r *domain.GenerationRequest) {
		r.ErrorKind = kind
		r.Error = cause.Error()
		r.CompletedAt = &now
		r.UpdatedAt = now
		if r.StartedAt != nil {
			r.GenerationSeconds = now.Sub(*r.StartedAt).Seconds()
		}
	})
	if err != nil {
		if errors.Is(err, persistence.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("fail request %s: %w", req.ID, err)
	}
	s.observe(failed)
	s.notify(ctx, failed, domain.NotifyFailed, "generation failed: "+cause.Error(), nil)
	return nil
}

func (s *generationService) cancelled(ctx context.Context, req *domain.GenerationRequest, log *slog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	done, err := s.requests.Transition(ctx, req.ID, []domain.RequestStatus{domain.StatusProcessing}, domain.StatusCancelled, func(r *domain.GenerationRequest) {
		r.CompletedAt = &now
		r.UpdatedAt = now
	})
	if err != nil {
		if errors.Is(err, persistence.ErrStatusConflict) {
			// Cancel already recorded the terminal status.
			log.Info("generation stopped after cancellation")
			return nil
		}
		return fmt.Errorf("cancel request %s: %w", req.ID, err)
	}
	s.observe(done)
	log.Info("generation cancelled")
	s.notify(ctx, done, domain.NotifyCancelled, "generation cancelled", nil)
	return nil
}

// requeue hands a request interrupted by shutdown back to pending so the
// next process recovers it. The partial search is dropped.
func (s *generationService) requeue(ctx context.Context, req *domain.GenerationRequest, log *slog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	_, err := s.requests.Transition(ctx, req.ID, []domain.RequestStatus{domain.StatusProcessing}, domain.StatusPending, func(r *domain.GenerationRequest) {
		r.StartedAt = nil
		r.UpdatedAt = s.now().UTC()
	})
	if err != nil {
		if errors.Is(err, persistence.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("requeue request %s: %w", req.ID, err)
	}
	if req.Mode == domain.ModeOptimization {
		if err := s.trials.ResetTrials(ctx, req.ID); err != nil {
			log.Warn("reset trial log failed; the rerun resets it again", "err", err)
		}
	}
	log.Info("generation interrupted by shutdown; returned to pending")
	return nil
}

func (s *generationService) observe(req *domain.GenerationRequest) {
	metrics.RequestsFinishedTotal.WithLabelValues(string(req.Family), string(req.Mode), string(req.Status)).Inc()
	if req.StartedAt != nil && req.CompletedAt != nil {
		metrics.GenerationDurationSeconds.WithLabelValues(string(req.Family), string(req.Mode), string(req.Status)).
			Observe(req.CompletedAt.Sub(*req.StartedAt).Seconds())
	}
}

func (s *generationService) notify(ctx context.Context, req *domain.GenerationRequest, kind domain.NotificationKind, msg string, score *float64) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), req.UserID, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		RequestID: req.ID,
		Kind:      kind,
		Message:   msg,
		Score:     score,
		CreatedAt: s.now().UTC(),
	})
}

// ===== Queries and commands =====

func (s *generationService) Get(ctx context.Context, userID, id string) (*domain.GenerationRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID != "" && req.UserID != userID {
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *generationService) List(ctx context.Context, userID string, status domain.RequestStatus, page, pageSize int) ([]*domain.GenerationRequest, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.Errorf(domain.KindInput, "unknown status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return s.requests.ListByUser(ctx, userID, persistence.ListOptions{
		Status: status,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
}

func (s *generationService) SearchRun(ctx context.Context, userID, id string) (*domain.SearchRun, error) {
	req, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Mode != domain.ModeOptimization {
		return nil, fmt.Errorf("%w: %s is not an optimization request", ErrNotFound, id)
	}
	run, err := s.trials.GetRun(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: search for %s has not started", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	trials, err := s.trials.ListTrials(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Trials = trials
	return run, nil
}

func (s *generationService) DownloadURL(ctx context.Context, userID, id string) (string, time.Time, error) {
	req, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if req.Status != domain.StatusCompleted || req.ArtifactKey == "" {
		return "", time.Time{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, req.Status)
	}
	return s.store.SignedURL(ctx, req.ArtifactKey, s.cfg.DownloadURLTTL)
}

func (s *generationService) Cancel(ctx context.Context, userID, id string) (*domain.GenerationRequest, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	req, err := s.requests.Transition(ctx, id, []domain.RequestStatus{domain.StatusPending, domain.StatusProcessing}, domain.StatusCancelled, func(r *domain.GenerationRequest) {
		r.CompletedAt = &now
		r.UpdatedAt = now
	})
	if errors.Is(err, persistence.ErrStatusConflict) {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	if err != nil {
		return nil, err
	}
	s.scheduler.Cancel(id)
	s.observe(req)
	s.logger.Info("generation cancelled by user", "request_id", id)
	s.notify(ctx, req, domain.NotifyCancelled, "generation cancelled", nil)
	return req, nil
}

func (s *generationService) Retry(ctx context.Context, userID, id string) (*domain.GenerationRequest, error) {
	src, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if src.Status != domain.StatusFailed && src.Status != domain.StatusCancelled {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRetryable, id, src.Status)
	}
	var opt *domain.OptimizationConfig
	if src.Optimization != nil {
		opt = src.Clone().Optimization
	}
	return s.Submit(ctx, SubmitInput{
		UserID:          src.UserID,
		DatasetKey:      src.DatasetKey,
		DatasetName:     src.DatasetName,
		Family:          src.Family,
		SampleSize:      src.SampleSize,
		Mode:            src.Mode,
		Hyperparameters: src.Hyperparameters,
		Optimization:    opt,
		RetryOf:         src.ID,
	})
}

// Recover re-enqueues pending requests and fails requests a previous process
// left in processing.
func (s *generationService) Recover(ctx context.Context) (int, int, error) {
	interruptedReqs, err := s.requests.ListByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		return 0, 0, fmt.Errorf("list processing requests: %w", err)
	}
	interrupted := 0
	for _, req := range interruptedReqs {
		if err := s.fail(ctx, req, []domain.RequestStatus{domain.StatusProcessing}, domain.Errorf(domain.KindInternal, "interrupted: the service stopped while processing")); err != nil {
			s.logger.Warn("recover: fail interrupted request", "request_id", req.ID, "err", err)
			continue
		}
		interrupted++
	}

	pending, err := s.requests.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		return 0, interrupted, fmt.Errorf("list pending requests: %w", err)
	}
	requeued := 0
	for _, req := range pending {
		if _, err := s.scheduler.Enqueue(req.ID); err != nil {
			s.logger.Warn("recover: queue full; remaining pending requests wait for the next start", "left", len(pending)-requeued)
			break
		}
		requeued++
	}
	if requeued > 0 || interrupted > 0 {
		s.logger.Info("recovered requests", "requeued", requeued, "interrupted", interrupted)
	}
	return requeued, interrupted, nil
}
