package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/repository"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

// translate maps repository errors onto the persistence sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return persistence.ErrNotFound
	case errors.Is(err, repository.ErrExists):
		return persistence.ErrAlreadyExists
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", persistence.ErrStatusConflict, err)
	default:
		return err
	}
}

// requestStorageAdapter adapts repository.RequestRepository to persistence.RequestStorage
type requestStorageAdapter struct {
	repo repository.RequestRepository
}

func (a *requestStorageAdapter) Create(ctx context.Context, req *domain.GenerationRequest) error {
	return translate(a.repo.Create(ctx, req))
}

func (a *requestStorageAdapter) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	req, err := a.repo.Get(ctx, id)
	return req, translate(err)
}

func (a *requestStorageAdapter) Save(ctx context.Context, req *domain.GenerationRequest) error {
	return translate(a.repo.Save(ctx, req))
}

func (a *requestStorageAdapter) Transition(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus, mutate persistence.Mutator) (*domain.GenerationRequest, error) {
	req, err := a.repo.Transition(ctx, id, from, to, mutate)
	return req, translate(err)
}

func (a *requestStorageAdapter) ListByUser(ctx context.Context, userID string, opts persistence.ListOptions) ([]*domain.GenerationRequest, int, error) {
	reqs, total, err := a.repo.ListByUser(ctx, userID, opts.Status, opts.Offset, opts.Limit)
	return reqs, total, translate(err)
}

func (a *requestStorageAdapter) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.GenerationRequest, error) {
	reqs, err := a.repo.ListByStatus(ctx, status)
	return reqs, translate(err)
}

// trialStorageAdapter adapts repository.TrialRepository to persistence.TrialStorage
type trialStorageAdapter struct {
	repo repository.TrialRepository
}

func (a *trialStorageAdapter) SaveRun(ctx context.Context, run *domain.SearchRun) error {
	return translate(a.repo.SaveRun(ctx, run))
}

func (a *trialStorageAdapter) GetRun(ctx context.Context, requestID string) (*domain.SearchRun, error) {
	run, err := a.repo.GetRun(ctx, requestID)
	return run, translate(err)
}

func (a *trialStorageAdapter) RecordTrial(ctx context.Context, requestID string, trial domain.TrialResult) error {
	return translate(a.repo.RecordTrial(ctx, requestID, trial))
}

func (a *trialStorageAdapter) ListTrials(ctx context.Context, requestID string) ([]domain.TrialResult, error) {
	trials, err := a.repo.ListTrials(ctx, requestID)
	return trials, translate(err)
}

func (a *trialStorageAdapter) ResetTrials(ctx context.Context, requestID string) error {
	return translate(a.repo.ResetTrials(ctx, requestID))
}

// notificationStorageAdapter adapts repository.NotificationRepository to persistence.NotificationStorage
type notificationStorageAdapter struct {
	repo repository.NotificationRepository
}

func (a *notificationStorageAdapter) Append(ctx context.Context, n domain.Notification) error {
	return translate(a.repo.Append(ctx, n))
}

func (a *notificationStorageAdapter) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	out, err := a.repo.List(ctx, userID, limit)
	return out, translate(err)
}
