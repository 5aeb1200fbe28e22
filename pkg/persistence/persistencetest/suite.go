// Package persistencetest holds the behaviour every persistence plugin must
// share. Plugin packages run it from their own tests.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

// Factory returns a fresh, empty plugin for one subtest.
type Factory func(t *testing.T) persistence.PluginPersistence

func Run(t *testing.T, newPlugin Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newPlugin(t)) })
	t.Run("Save", func(t *testing.T) { testSave(t, newPlugin(t)) })
	t.Run("Transition", func(t *testing.T) { testTransition(t, newPlugin(t)) })
	t.Run("TransitionRace", func(t *testing.T) { testTransitionRace(t, newPlugin(t)) })
	t.Run("ListByUser", func(t *testing.T) { testListByUser(t, newPlugin(t)) })
	t.Run("ListByStatus", func(t *testing.T) { testListByStatus(t, newPlugin(t)) })
	t.Run("Trials", func(t *testing.T) { testTrials(t, newPlugin(t)) })
	t.Run("ResetTrials", func(t *testing.T) { testResetTrials(t, newPlugin(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newPlugin(t)) })
	t.Run("Health", func(t *testing.T) {
		if err := newPlugin(t).Health(context.Background()); err != nil {
			t.Fatalf("Health: %v", err)
		}
	})
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRequest builds a pending optimization request.
func NewRequest(id, user string, offset time.Duration) *domain.GenerationRequest {
	return &domain.GenerationRequest{
		ID:          id,
		UserID:      user,
		DatasetKey:  "datasets/" + user + "/adult.csv",
		DatasetName: "adult.csv",
		Family:      domain.FamilyCTGAN,
		SampleSize:  1000,
		Mode:        domain.ModeOptimization,
		Status:      domain.StatusPending,
		Optimization: &domain.OptimizationConfig{
			Method:  domain.MethodGrid,
			NTrials: 4,
			Space: domain.NewSearchSpace(
				domain.NumericChoices("epochs", 100, 300),
				domain.LogRange("generator_lr", 1e-5, 1e-3),
			),
		},
		CreatedAt: base.Add(offset),
		UpdatedAt: base.Add(offset),
	}
}

func testCreateGet(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.RequestStorage()
	req := NewRequest("r1", "u1", 0)
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, req); !errors.Is(err, persistence.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "u1" || got.Optimization == nil || got.Optimization.Space.Len() != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !got.CreatedAt.Equal(req.CreatedAt) {
		t.Fatalf("createdAt changed: %v vs %v", got.CreatedAt, req.CreatedAt)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSave(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.RequestStorage()
	req := NewRequest("r1", "u1", 0)
	if err := store.Save(ctx, req); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Save of unknown request: expected ErrNotFound, got %v", err)
	}
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	req.DatasetName = "renamed.csv"
	if err := store.Save(ctx, req); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := store.Get(ctx, "r1")
	if got.DatasetName != "renamed.csv" {
		t.Fatalf("Save not persisted: %q", got.DatasetName)
	}
}

func testTransition(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.RequestStorage()
	if err := store.Create(ctx, NewRequest("r1", "u1", 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	started := base.Add(time.Minute)
	got, err := store.Transition(ctx, "r1", []domain.RequestStatus{domain.StatusPending}, domain.StatusProcessing, func(r *domain.GenerationRequest) {
		r.StartedAt = &started
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != domain.StatusProcessing || got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected request after transition %+v", got)
	}

	_, err = store.Transition(ctx, "r1", []domain.RequestStatus{domain.StatusPending}, domain.StatusProcessing, nil)
	if !errors.Is(err, persistence.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	score := 0.82
	_, err = store.Transition(ctx, "r1", []domain.RequestStatus{domain.StatusProcessing}, domain.StatusCompleted, func(r *domain.GenerationRequest) {
		r.QualityScore = &score
		r.Status = domain.StatusFailed
	})
	if err != nil {
		t.Fatalf("Transition to completed: %v", err)
	}
	stored, _ := store.Get(ctx, "r1")
	if stored.Status != domain.StatusCompleted || stored.QualityScore == nil || *stored.QualityScore != 0.82 {
		t.Fatalf("mutator may not override the target status: %+v", stored)
	}

	_, err = store.Transition(ctx, "r1", []domain.RequestStatus{domain.StatusPending, domain.StatusProcessing}, domain.StatusCancelled, nil)
	if !errors.Is(err, persistence.ErrStatusConflict) {
		t.Fatalf("terminal request must not change, got %v", err)
	}
	if _, err := store.Transition(ctx, "missing", []domain.RequestStatus{domain.StatusPending}, domain.StatusProcessing, nil); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testTransitionRace(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.RequestStorage()
	if err := store.Create(ctx, NewRequest("r1", "u1", 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Transition(ctx, "r1", []domain.RequestStatus{domain.StatusPending}, domain.StatusProcessing, nil)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, persistence.ErrStatusConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func testListByUser(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.RequestStorage()
	for i := 0; i < 5; i++ {
		if err := store.Create(ctx, NewRequest(fmt.Sprintf("r%d", i), "u1", time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.Create(ctx, NewRequest("other", "u2", 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Transition(ctx, "r1", []domain.RequestStatus{domain.StatusPending}, domain.StatusCancelled, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	page, total, err := store.ListByUser(ctx, "u1", persistence.ListOptions{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if total != 5 || len(page) != 2 || page[0].ID != "r3" || page[1].ID != "r2" {
		t.Fatalf("unexpected page total=%d ids=%v", total, ids(page))
	}

	cancelled, total, err := store.ListByUser(ctx, "u1", persistence.ListOptions{Status: domain.StatusCancelled})
	if err != nil {
		t.Fatalf("ListByUser status: %v", err)
	}
	if total != 1 || len(cancelled) != 1 || cancelled[0].ID != "r1" {
		t.Fatalf("unexpected filtered list %v", ids(cancelled))
	}

	empty, total, err := store.ListByUser(ctx, "nobody", persistence.ListOptions{})
	if err != nil || total != 0 || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %d %v", ids(empty), total, err)
	}
}

func testListByStatus(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.RequestStorage()
	_ = store.Create(ctx, NewRequest("a", "u1", 2*time.Minute))
	_ = store.Create(ctx, NewRequest("b", "u2", time.Minute))
	_ = store.Create(ctx, NewRequest("c", "u1", 0))
	if _, err := store.Transition(ctx, "c", []domain.RequestStatus{domain.StatusPending}, domain.StatusProcessing, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	pending, err := store.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "b" || pending[1].ID != "a" {
		t.Fatalf("expected oldest first [b a], got %v", ids(pending))
	}
	processing, _ := store.ListByStatus(ctx, domain.StatusProcessing)
	if len(processing) != 1 || processing[0].ID != "c" {
		t.Fatalf("unexpected processing list %v", ids(processing))
	}
}

func testTrials(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.TrialStorage()
	if _, err := store.GetRun(ctx, "r1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	run := domain.NewSearchRun("r1", domain.MethodBayesian, domain.AcquisitionEI, 3, base)
	t1 := domain.NewTrial(1, domain.NumericSet(map[string]float64{"epochs": 100}), base).Finish(0.7, base.Add(time.Second))
	t2 := domain.NewTrial(2, domain.NumericSet(map[string]float64{"epochs": 300}), base).Fail("train: oom", base.Add(2*time.Second))
	run.Record(t1)
	run.Record(t2)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	for _, tr := range []domain.TrialResult{t2, t1, t1} {
		if err := store.RecordTrial(ctx, "r1", tr); err != nil {
			t.Fatalf("RecordTrial: %v", err)
		}
	}
	replay := t1.Fail("late", base.Add(time.Hour))
	replay.Status = domain.TrialFailed
	if err := store.RecordTrial(ctx, "r1", replay); err != nil {
		t.Fatalf("RecordTrial replay: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Attempted != 2 || got.Completed != 1 || got.Failed != 1 || got.BestTrial != 1 || len(got.Trials) != 0 {
		t.Fatalf("unexpected run header %+v", got)
	}

	trials, err := store.ListTrials(ctx, "r1")
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	if len(trials) != 2 || trials[0].Number != 1 || trials[1].Number != 2 {
		t.Fatalf("expected trials [1 2], got %+v", trials)
	}
	if trials[0].Status != domain.TrialCompleted || trials[0].Score == nil || *trials[0].Score != 0.7 {
		t.Fatalf("first record must win: %+v", trials[0])
	}
	if e, _ := trials[0].Hyperparameters.Int("epochs"); e != 100 {
		t.Fatalf("hyperparameters lost: %s", trials[0].Hyperparameters)
	}
	if trials[1].Error != "train: oom" {
		t.Fatalf("error lost: %+v", trials[1])
	}

	empty, err := store.ListTrials(ctx, "none")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no trials, got %v %v", empty, err)
	}
}

func testResetTrials(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.TrialStorage()
	if err := store.ResetTrials(ctx, "none"); err != nil {
		t.Fatalf("ResetTrials on unknown request: %v", err)
	}

	stale := domain.NewTrial(1, domain.NumericSet(map[string]float64{"epochs": 146}), base).Finish(0.07, base.Add(time.Second))
	run := domain.NewSearchRun("r1", domain.MethodRandom, "", 2, base)
	run.Record(stale)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.RecordTrial(ctx, "r1", stale); err != nil {
		t.Fatalf("RecordTrial: %v", err)
	}
	other := domain.NewSearchRun("r2", domain.MethodGrid, "", 1, base)
	if err := store.SaveRun(ctx, other); err != nil {
		t.Fatalf("SaveRun r2: %v", err)
	}

	if err := store.ResetTrials(ctx, "r1"); err != nil {
		t.Fatalf("ResetTrials: %v", err)
	}
	if _, err := store.GetRun(ctx, "r1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("run header should be gone, got %v", err)
	}
	if trials, err := store.ListTrials(ctx, "r1"); err != nil || len(trials) != 0 {
		t.Fatalf("expected no trials after reset, got %v %v", trials, err)
	}
	if _, err := store.GetRun(ctx, "r2"); err != nil {
		t.Fatalf("other request's run must survive: %v", err)
	}

	fresh := domain.NewTrial(1, domain.NumericSet(map[string]float64{"epochs": 552}), base).Finish(0.27, base.Add(time.Minute))
	if err := store.RecordTrial(ctx, "r1", fresh); err != nil {
		t.Fatalf("RecordTrial after reset: %v", err)
	}
	trials, err := store.ListTrials(ctx, "r1")
	if err != nil || len(trials) != 1 {
		t.Fatalf("expected one trial, got %v %v", trials, err)
	}
	if e, _ := trials[0].Hyperparameters.Int("epochs"); e != 552 {
		t.Fatalf("reset must allow a new first record, got %s", trials[0].Hyperparameters)
	}
}

func testNotifications(t *testing.T, p persistence.PluginPersistence) {
	ctx := context.Background()
	store := p.NotificationStorage()
	for i := 0; i < 3; i++ {
		n := domain.Notification{
			ID:        fmt.Sprintf("n%d", i),
			UserID:    "u1",
			RequestID: "r1",
			Kind:      domain.NotifyStarted,
			Message:   "started",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, n); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := store.List(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "n2" || got[1].ID != "n1" {
		t.Fatalf("expected newest first [n2 n1], got %+v", got)
	}
	other, _ := store.List(ctx, "u2", 10)
	if len(other) != 0 {
		t.Fatalf("inbox leaked across users: %+v", other)
	}
}

func ids(reqs []*domain.GenerationRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}
