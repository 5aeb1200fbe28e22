package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

// Plugin implements PluginPersistence for in-memory storage
// This is primarily for development and tests; state is lost on restart
type Plugin struct {
	mu            sync.RWMutex
	requests      map[string]*domain.GenerationRequest
	runs          map[string]*domain.SearchRun
	trials        map[string]map[int]domain.TrialResult
	notifications map[string][]domain.Notification
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return &Plugin{
		requests:      make(map[string]*domain.GenerationRequest),
		runs:          make(map[string]*domain.SearchRun),
		trials:        make(map[string]map[int]domain.TrialResult),
		notifications: make(map[string][]domain.Notification),
	}, nil
}

// RequestStorage returns the request storage implementation
func (p *Plugin) RequestStorage() persistence.RequestStorage {
	return &requestStorage{plugin: p}
}

// TrialStorage returns the trial storage implementation
func (p *Plugin) TrialStorage() persistence.TrialStorage {
	return &trialStorage{plugin: p}
}

// NotificationStorage returns the notification storage implementation
func (p *Plugin) NotificationStorage() persistence.NotificationStorage {
	return &notificationStorage{plugin: p}
}

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

// requestStorage implements persistence.RequestStorage for in-memory storage
type requestStorage struct {
	plugin *Plugin
}

func (s *requestStorage) Create(ctx context.Context, req *domain.GenerationRequest) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if _, ok := s.plugin.requests[req.ID]; ok {
		return persistence.ErrAlreadyExists
	}
	s.plugin.requests[req.ID] = req.Clone()
	return nil
}

func (s *requestStorage) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	req, ok := s.plugin.requests[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return req.Clone(), nil
}

func (s *requestStorage) Save(ctx context.Context, req *domain.GenerationRequest) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if _, ok := s.plugin.requests[req.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.plugin.requests[req.ID] = req.Clone()
	return nil
}

func (s *requestStorage) Transition(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus, mutate persistence.Mutator) (*domain.GenerationRequest, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	cur, ok := s.plugin.requests[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	if !persistence.StatusAllowed(cur.Status, from) {
		return nil, fmt.Errorf("%w: request %s is %s", persistence.ErrStatusConflict, id, cur.Status)
	}
	next := cur.Clone()
	next.Status = to
	if mutate != nil {
		mutate(next)
		next.Status = to
	}
	s.plugin.requests[id] = next
	return next.Clone(), nil
}

func (s *requestStorage) ListByUser(ctx context.Context, userID string, opts persistence.ListOptions) ([]*domain.GenerationRequest, int, error) {
	s.plugin.mu.RLock()
	var matched []*domain.GenerationRequest
	for _, r := range s.plugin.requests {
		if r.UserID != userID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		matched = append(matched, r.Clone())
	}
	s.plugin.mu.RUnlock()

	sortNewestFirst(matched)
	return page(matched, opts), len(matched), nil
}

func (s *requestStorage) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.GenerationRequest, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	var out []*domain.GenerationRequest
	for _, r := range s.plugin.requests {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func sortNewestFirst(reqs []*domain.GenerationRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID > reqs[j].ID
		}
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
}

func page(reqs []*domain.GenerationRequest, opts persistence.ListOptions) []*domain.GenerationRequest {
	if opts.Offset >= len(reqs) {
		return []*domain.GenerationRequest{}
	}
	reqs = reqs[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(reqs) {
		reqs = reqs[:opts.Limit]
	}
	return reqs
}

// trialStorage implements persistence.TrialStorage for in-memory storage
type trialStorage struct {
	plugin *Plugin
}

func (s *trialStorage) SaveRun(ctx context.Context, run *domain.SearchRun) error {
	h := run.Header()
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	s.plugin.runs[run.RequestID] = &h
	return nil
}

func (s *trialStorage) GetRun(ctx context.Context, requestID string) (*domain.SearchRun, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	run, ok := s.plugin.runs[requestID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	h := run.Header()
	return &h, nil
}

func (s *trialStorage) RecordTrial(ctx context.Context, requestID string, trial domain.TrialResult) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	byNumber, ok := s.plugin.trials[requestID]
	if !ok {
		byNumber = make(map[int]domain.TrialResult)
		s.plugin.trials[requestID] = byNumber
	}
	if _, dup := byNumber[trial.Number]; dup {
		return nil
	}
	byNumber[trial.Number] = trial
	return nil
}

func (s *trialStorage) ResetTrials(ctx context.Context, requestID string) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	delete(s.plugin.runs, requestID)
	delete(s.plugin.trials, requestID)
	return nil
}

func (s *trialStorage) ListTrials(ctx context.Context, requestID string) ([]domain.TrialResult, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	out := make([]domain.TrialResult, 0, len(s.plugin.trials[requestID]))
	for _, t := range s.plugin.trials[requestID] {
		out = append(out, t)
	}
	domain.SortTrials(out)
	return out, nil
}

// notificationStorage implements persistence.NotificationStorage for in-memory storage
type notificationStorage struct {
	plugin *Plugin
}

func (s *notificationStorage) Append(ctx context.Context, n domain.Notification) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	s.plugin.notifications[n.UserID] = append(s.plugin.notifications[n.UserID], n)
	return nil
}

func (s *notificationStorage) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	inbox := s.plugin.notifications[userID]
	out := make([]domain.Notification, 0, len(inbox))
	for i := len(inbox) - 1; i >= 0; i-- {
		out = append(out, inbox[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
