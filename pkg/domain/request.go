package domain

import "time"

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusCancelled  RequestStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Mode string

const (
	ModeSimple       Mode = "simple"
	ModeOptimization Mode = "optimization"
)

type ModelFamily string

const (
	FamilyCTGAN ModelFamily = "ctgan"
	FamilyTVAE  ModelFamily = "tvae"
)

type SearchMethod string

const (
	MethodGrid     SearchMethod = "grid"
	MethodRandom   SearchMethod = "random"
	MethodBayesian SearchMethod = "bayesian"
)

func (m SearchMethod) Valid() bool {
	return m == MethodGrid || m == MethodRandom || m == MethodBayesian
}

type Acquisition string

const (
	AcquisitionEI  Acquisition = "ei"
	AcquisitionUCB Acquisition = "ucb"
	AcquisitionPI  Acquisition = "pi"
)

func (a Acquisition) Valid() bool {
	return a == AcquisitionEI || a == AcquisitionUCB || a == AcquisitionPI
}

// OptimizationConfig describes the search requested for optimization mode.
type OptimizationConfig struct {
	Method         SearchMethod `json:"method"`
	NTrials        int          `json:"nTrials"`
	Space          SearchSpace  `json:"searchSpace"`
	OptimizeParams []string     `json:"optimizeParams,omitempty"`
	Acquisition    Acquisition  `json:"acquisition,omitempty"`
	TimeoutSeconds int          `json:"timeoutSeconds,omitempty"`
	Seed           int64        `json:"seed,omitempty"`
	Parallelism    int          `json:"parallelism,omitempty"`
}

type GenerationRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	DatasetKey  string        `json:"datasetKey"`
	DatasetName string        `json:"datasetName,omitempty"`
	Family      ModelFamily   `json:"modelType"`
	SampleSize  int           `json:"sampleSize"`
	Mode        Mode          `json:"mode"`
	Status      RequestStatus `json:"status"`

	Hyperparameters HyperparameterSet   `json:"hyperparameters"`
	Optimization    *OptimizationConfig `json:"optimization,omitempty"`

	FinalHyperparameters  HyperparameterSet `json:"finalHyperparameters"`
	QualityScore          *float64          `json:"qualityScore,omitempty"`
	ArtifactKey           string            `json:"artifactKey,omitempty"`
	Optimized             bool              `json:"optimized"`
	OptimizationAttempted bool              `json:"optimizationAttempted"`
	GenerationSeconds     float64           `json:"generationSeconds,omitempty"`

	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	RetryOf   string    `json:"retryOf,omitempty"`

	TraceParent string `json:"traceParent,omitempty"`
	TraceState  string `json:"traceState,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a copy that shares no pointers with r.
func (r *GenerationRequest) Clone() *GenerationRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.Optimization != nil {
		o := *r.Optimization
		o.Space = SearchSpace{Params: append([]ParamSpec(nil), r.Optimization.Space.Params...)}
		o.OptimizeParams = append([]string(nil), r.Optimization.OptimizeParams...)
		c.Optimization = &o
	}
	if r.QualityScore != nil {
		s := *r.QualityScore
		c.QualityScore = &s
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ArtifactKeyFor is the object key under which a request's output is stored.
func ArtifactKeyFor(userID, requestID string) string {
	return "synthetic/" + userID + "/" + requestID + "/synthetic_data.csv"
}
