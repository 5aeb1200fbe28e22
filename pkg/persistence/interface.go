package persistence

import (
	"context"
	"errors"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a key already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrStatusConflict is returned by Transition when the stored status is
	// not one of the expected source statuses
	ErrStatusConflict = errors.New("status conflict")
)

// PluginPersistence provides storage operations for persistence plugins.
// This is the main interface that all persistence backends must implement.
type PluginPersistence interface {
	// RequestStorage returns the generation request storage implementation
	RequestStorage() RequestStorage

	// TrialStorage returns the search run and trial log implementation
	TrialStorage() TrialStorage

	// NotificationStorage returns the user inbox implementation
	NotificationStorage() NotificationStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// ListOptions pages through a user's requests, newest first.
type ListOptions struct {
	Status domain.RequestStatus
	Offset int
	Limit  int
}

// Mutator edits a request inside a Transition, after the status changed.
type Mutator func(req *domain.GenerationRequest)

// RequestStorage defines persistence operations for generation requests
type RequestStorage interface {
	// Create stores a new request; ErrAlreadyExists if the id is taken
	Create(ctx context.Context, req *domain.GenerationRequest) error

	// Get retrieves a request by ID
	Get(ctx context.Context, id string) (*domain.GenerationRequest, error)

	// Save overwrites an existing request without checking its status
	Save(ctx context.Context, req *domain.GenerationRequest) error

	// Transition atomically moves a request from one of the from statuses to
	// to, applies mutate and returns the stored result
	Transition(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus, mutate Mutator) (*domain.GenerationRequest, error)

	// ListByUser returns one page of a user's requests and the total count
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*domain.GenerationRequest, int, error)

	// ListByStatus returns every request currently in status
	ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.GenerationRequest, error)
}

// TrialStorage defines persistence operations for search runs and their trials
type TrialStorage interface {
	// SaveRun stores the run header (counters, best trial, status)
	SaveRun(ctx context.Context, run *domain.SearchRun) error

	// GetRun retrieves the run header of a request
	GetRun(ctx context.Context, requestID string) (*domain.SearchRun, error)

	// RecordTrial appends a finalized trial; recording the same number twice keeps the first
	RecordTrial(ctx context.Context, requestID string, trial domain.TrialResult) error

	// ListTrials returns the trials of a request ordered by number
	ListTrials(ctx context.Context, requestID string) ([]domain.TrialResult, error)

	// ResetTrials drops the run header and every trial of a request; resetting an unknown request is a no-op
	ResetTrials(ctx context.Context, requestID string) error
}

// NotificationStorage defines persistence operations for user inboxes
type NotificationStorage interface {
	// Append adds a notification to its user's inbox
	Append(ctx context.Context, n domain.Notification) error

	// List returns up to limit notifications, newest first
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// StatusAllowed reports whether cur is one of from.
func StatusAllowed(cur domain.RequestStatus, from []domain.RequestStatus) bool {
	for _, s := range from {
		if s == cur {
			return true
		}
	}
	return false
}
