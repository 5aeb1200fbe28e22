package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/model"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/providers"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scoreTrainer trains fake models whose samples carry the score computed
// from the hyperparameters, so scoreReader can read it back.
type scoreTrainer struct {
	mu     sync.Mutex
	score  func(h domain.HyperparameterSet) (float64, error)
	onCall func(call int, h domain.HyperparameterSet)
	calls  []domain.HyperparameterSet
}

func (t *scoreTrainer) Train(ctx context.Context, family domain.ModelFamily, h domain.HyperparameterSet, data *domain.Dataset) (model.Model, error) {
	t.mu.Lock()
	t.calls = append(t.calls, h)
	call := len(t.calls)
	t.mu.Unlock()
	if t.onCall != nil {
		t.onCall(call, h)
	}
	s, err := t.score(h)
	if err != nil {
		return nil, err
	}
	return &scoreModel{score: s}, nil
}

func (t *scoreTrainer) Calls() []domain.HyperparameterSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.HyperparameterSet(nil), t.calls...)
}

type scoreModel struct {
	score float64
}

func (m *scoreModel) Sample(ctx context.Context, rows int) (*domain.Dataset, error) {
	d := &domain.Dataset{Header: []string{"score"}}
	for i := 0; i < rows; i++ {
		d.Rows = append(d.Rows, []string{strconv.FormatFloat(m.score, 'f', -1, 64)})
	}
	return d, nil
}

type scoreReader struct {
	err error
}

func (s scoreReader) Score(ctx context.Context, real, synthetic *domain.Dataset) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return strconv.ParseFloat(synthetic.Rows[0][0], 64)
}

// scoreByEpochs maps epochs to a score; missing entries fail training.
func scoreByEpochs(scores map[int]float64) func(h domain.HyperparameterSet) (float64, error) {
	return func(h domain.HyperparameterSet) (float64, error) {
		e, _ := h.Int("epochs")
		s, ok := scores[e]
		if !ok {
			return 0, fmt.Errorf("train: epochs=%d diverged", e)
		}
		return s, nil
	}
}

func testDataset(rows int) *domain.Dataset {
	d := &domain.Dataset{Header: []string{"age", "income"}}
	for i := 0; i < rows; i++ {
		d.Rows = append(d.Rows, []string{strconv.Itoa(20 + i%50), strconv.Itoa(1000 * (i%7 + 1))})
	}
	return d
}

// syncScheduler records enqueued ids; tests call Process themselves.
type syncScheduler struct {
	mu        sync.Mutex
	enqueued  []string
	cancelled []string
	full      bool
}

func (s *syncScheduler) Enqueue(id string) (*TaskHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return nil, ErrQueueFull
	}
	s.enqueued = append(s.enqueued, id)
	return &TaskHandle{ID: id}, nil
}

func (s *syncScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
	return true
}

// failingStore rejects every Put.
type failingStore struct {
	providers.ArtifactStore
}

func (f failingStore) Put(ctx context.Context, key, contentType string, data []byte) (providers.Handle, error) {
	return providers.Handle{}, errors.New("disk full")
}

// hookedStore runs afterPut once an upload succeeded.
type hookedStore struct {
	providers.ArtifactStore
	afterPut func(key string)
}

func (h hookedStore) Put(ctx context.Context, key, contentType string, data []byte) (providers.Handle, error) {
	handle, err := h.ArtifactStore.Put(ctx, key, contentType, data)
	if err == nil && h.afterPut != nil {
		h.afterPut(key)
	}
	return handle, err
}

// panickingStore blows up on upload, outside any trial.
type panickingStore struct {
	providers.ArtifactStore
}

func (panickingStore) Put(ctx context.Context, key, contentType string, data []byte) (providers.Handle, error) {
	panic("nil writer")
}

type workflowFixture struct {
	svc       *generationService
	plugin    persistence.PluginPersistence
	store     providers.ArtifactStore
	trainer   *scoreTrainer
	scheduler *syncScheduler
	user      string
	dataset   string
}

func newWorkflowFixture(t *testing.T, score func(h domain.HyperparameterSet) (float64, error)) *workflowFixture {
	t.Helper()
	plugin, err := memory.NewPlugin(persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("memory plugin: %v", err)
	}
	store := providers.NewLocalStore(t.TempDir(), "http://synth.test", "url-secret")

	data := testDataset(120)
	raw, err := data.EncodeCSV()
	if err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	dataset := "datasets/u1/adult.csv"
	if _, err := store.Put(context.Background(), dataset, "text/csv", raw); err != nil {
		t.Fatalf("Put dataset: %v", err)
	}

	trainer := &scoreTrainer{score: score}
	runner := NewTrialRunner(trainer, scoreReader{}, quietLogger())
	scheduler := &syncScheduler{}
	notifier := newNotifierService(plugin.NotificationStorage(), quietLogger(), NotifierConfig{}, nil)
	svc := NewGenerationService(
		plugin.RequestStorage(),
		plugin.TrialStorage(),
		store,
		runner,
		NewOptimizerService(runner, quietLogger()),
		scheduler,
		notifier,
		quietLogger(),
		GenerationConfig{},
	).(*generationService)

	return &workflowFixture{
		svc:       svc,
		plugin:    plugin,
		store:     store,
		trainer:   trainer,
		scheduler: scheduler,
		user:      "u1",
		dataset:   dataset,
	}
}

func (f *workflowFixture) submit(t *testing.T, in SubmitInput) *domain.GenerationRequest {
	t.Helper()
	if in.UserID == "" {
		in.UserID = f.user
	}
	if in.DatasetKey == "" {
		in.DatasetKey = f.dataset
	}
	if in.Family == "" {
		in.Family = domain.FamilyCTGAN
	}
	if in.SampleSize == 0 {
		in.SampleSize = 200
	}
	req, err := f.svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return req
}

func (f *workflowFixture) get(t *testing.T, id string) *domain.GenerationRequest {
	t.Helper()
	req, err := f.plugin.RequestStorage().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return req
}

func (f *workflowFixture) inbox(t *testing.T) []domain.NotificationKind {
	t.Helper()
	notes, err := f.plugin.NotificationStorage().List(context.Background(), f.user, 0)
	if err != nil {
		t.Fatalf("List notifications: %v", err)
	}
	kinds := make([]domain.NotificationKind, len(notes))
	for i, n := range notes {
		kinds[len(notes)-1-i] = n.Kind
	}
	return kinds
}

func epochsGrid(values ...float64) *domain.OptimizationConfig {
	return &domain.OptimizationConfig{
		Method:  domain.MethodGrid,
		NTrials: len(values),
		Space:   domain.NewSearchSpace(domain.NumericChoices("epochs", values...)),
	}
}

// steppedClock advances only when told to.
type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
