package domain

import (
	"sort"
	"time"
)

type TrialStatus string

const (
	TrialPending   TrialStatus = "pending"
	TrialRunning   TrialStatus = "running"
	TrialCompleted TrialStatus = "completed"
	TrialFailed    TrialStatus = "failed"
)

// TrialResult records one train-sample-score attempt.
type TrialResult struct {
	Number          int               `json:"number"`
	Hyperparameters HyperparameterSet `json:"hyperparameters"`
	Score           *float64          `json:"score,omitempty"`
	ElapsedSeconds  float64           `json:"elapsedSeconds"`
	Status          TrialStatus       `json:"status"`
	Error           string            `json:"error,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
}

func NewTrial(number int, h HyperparameterSet, now time.Time) TrialResult {
	return TrialResult{Number: number, Hyperparameters: h, Status: TrialRunning, StartedAt: now}
}

func (t TrialResult) Finalized() bool {
	return t.Status == TrialCompleted || t.Status == TrialFailed
}

// Finish marks the trial completed with score. Finalized trials are returned unchanged.
func (t TrialResult) Finish(score float64, now time.Time) TrialResult {
	if t.Finalized() {
		return t
	}
	t.Status = TrialCompleted
	t.Score = &score
	t.ElapsedSeconds = now.Sub(t.StartedAt).Seconds()
	t.CompletedAt = &now
	return t
}

// Fail marks the trial failed. Finalized trials are returned unchanged.
func (t TrialResult) Fail(msg string, now time.Time) TrialResult {
	if t.Finalized() {
		return t
	}
	t.Status = TrialFailed
	t.Score = nil
	t.Error = msg
	t.ElapsedSeconds = now.Sub(t.StartedAt).Seconds()
	t.CompletedAt = &now
	return t
}

// Succeeded reports whether the trial completed with a score.
func (t TrialResult) Succeeded() bool {
	return t.Status == TrialCompleted && t.Score != nil
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// SearchRun is the record of one hyperparameter search for a request.
type SearchRun struct {
	RequestID       string        `json:"requestId"`
	Method          SearchMethod  `json:"method"`
	Acquisition     Acquisition   `json:"acquisition,omitempty"`
	RequestedTrials int           `json:"requestedTrials"`
	Attempted       int           `json:"attempted"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	BestTrial       int           `json:"bestTrial,omitempty"`
	BestScore       *float64      `json:"bestScore,omitempty"`
	Status          RunStatus     `json:"status"`
	TimedOut        bool          `json:"timedOut"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	Trials          []TrialResult `json:"trials,omitempty"`
}

func NewSearchRun(requestID string, method SearchMethod, acq Acquisition, budget int, now time.Time) *SearchRun {
	return &SearchRun{
		RequestID:       requestID,
		Method:          method,
		Acquisition:     acq,
		RequestedTrials: budget,
		Status:          RunRunning,
		StartedAt:       now,
	}
}

// Record folds a finalized trial into the counters. It returns true when the
// trial became the new best: only a strictly greater score replaces the
// incumbent, so ties keep the earliest trial.
func (r *SearchRun) Record(t TrialResult) bool {
	r.Trials = append(r.Trials, t)
	r.Attempted++
	if !t.Succeeded() {
		r.Failed++
		return false
	}
	r.Completed++
	if r.BestScore == nil || *t.Score > *r.BestScore {
		s := *t.Score
		r.BestScore = &s
		r.BestTrial = t.Number
		return true
	}
	return false
}

// Best returns the incumbent trial, if any.
func (r *SearchRun) Best() (TrialResult, bool) {
	if r.BestScore == nil {
		return TrialResult{}, false
	}
	for _, t := range r.Trials {
		if t.Number == r.BestTrial {
			return t, true
		}
	}
	return TrialResult{}, false
}

// Close sets the terminal status: completed with at least one successful
// trial, failed otherwise. A cancelled run stays cancelled.
func (r *SearchRun) Close(now time.Time, cancelled bool) {
	switch {
	case cancelled:
		r.Status = RunCancelled
	case r.Completed > 0:
		r.Status = RunCompleted
	default:
		r.Status = RunFailed
	}
	r.CompletedAt = &now
}

// Header returns a copy of the run without its trials.
func (r *SearchRun) Header() SearchRun {
	h := *r
	h.Trials = nil
	return h
}

// SortTrials orders trials by number.
func SortTrials(trials []TrialResult) {
	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Number < trials[j].Number })
}
