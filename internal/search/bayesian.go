package search

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

const (
	warmupPoints  = 2
	restarts      = 10
	ucbKappa      = 2.576
	improvementXi = 0.01
	maxNMIters    = 200
)

// bayesian fits a Gaussian process to the scored trials of the history and
// proposes the maximizer of the acquisition function.
type bayesian struct {
	space   domain.SearchSpace
	budget  int
	acq     domain.Acquisition
	rng     *rand.Rand
	sampler *sampler
	emitted int
}

func newBayesian(space domain.SearchSpace, budget int, acq domain.Acquisition, rng *rand.Rand) *bayesian {
	return &bayesian{
		space:   space,
		budget:  budget,
		acq:     acq,
		rng:     rng,
		sampler: newSampler(space, rng),
	}
}

func (b *bayesian) Method() domain.SearchMethod { return domain.MethodBayesian }

func (b *bayesian) Next(history []domain.TrialResult) (domain.HyperparameterSet, bool) {
	if b.emitted >= b.budget {
		return domain.HyperparameterSet{}, false
	}
	for _, t := range history {
		b.sampler.markSeen(t.Hyperparameters)
	}

	x, y := b.observations(history)
	if b.emitted >= warmupPoints && len(y) >= warmupPoints {
		if h, ok := b.propose(x, y); ok && !b.sampler.isSeen(h) {
			b.sampler.markSeen(h)
			b.emitted++
			return h, true
		}
	}
	h, ok := b.sampler.fresh()
	if !ok {
		return domain.HyperparameterSet{}, false
	}
	b.emitted++
	return h, true
}

// observations encodes the successful trials. Failed trials carry no score
// and are left out of the surrogate.
func (b *bayesian) observations(history []domain.TrialResult) ([][]float64, []float64) {
	var xs [][]float64
	var ys []float64
	for _, t := range history {
		if !t.Succeeded() {
			continue
		}
		x, ok := encode(b.space, t.Hyperparameters)
		if !ok {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, *t.Score)
	}
	return xs, ys
}

func (b *bayesian) propose(x [][]float64, y []float64) (domain.HyperparameterSet, bool) {
	gp, err := fitGP(x, y)
	if err != nil {
		return domain.HyperparameterSet{}, false
	}
	score := b.acquisition(gp)
	dims := b.space.Len()
	objective := func(u []float64) float64 { return -score(clamp01(u)) }

	var bestX []float64
	bestVal := math.Inf(-1)
	for r := 0; r < restarts; r++ {
		x0 := make([]float64, dims)
		for i := range x0 {
			x0[i] = b.rng.Float64()
		}
		cand := x0
		res, err := optimize.Minimize(
			optimize.Problem{Func: objective},
			x0,
			&optimize.Settings{MajorIterations: maxNMIters},
			&optimize.NelderMead{},
		)
		if res != nil && (err == nil || len(res.X) == dims) {
			cand = res.X
		}
		cand = clamp01(cand)
		if v := score(cand); v > bestVal {
			bestVal, bestX = v, cand
		}
	}
	if bestX == nil {
		return domain.HyperparameterSet{}, false
	}
	return decode(b.space, bestX), true
}

func (b *bayesian) acquisition(gp *gaussianProcess) func([]float64) float64 {
	best := gp.yBestZ
	normal := distuv.UnitNormal
	switch b.acq {
	case domain.AcquisitionUCB:
		return func(u []float64) float64 {
			mu, sigma := gp.predict(u)
			return mu + ucbKappa*sigma
		}
	case domain.AcquisitionPI:
		return func(u []float64) float64 {
			mu, sigma := gp.predict(u)
			return normal.CDF((mu - best - improvementXi) / sigma)
		}
	default:
		return func(u []float64) float64 {
			mu, sigma := gp.predict(u)
			imp := mu - best - improvementXi
			z := imp / sigma
			return imp*normal.CDF(z) + sigma*normal.Prob(z)
		}
	}
}

func clamp01(u []float64) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		switch {
		case math.IsNaN(v), v < 0:
			out[i] = 0
		case v > 1:
			out[i] = 1
		default:
			out[i] = v
		}
	}
	return out
}

// encode maps a configuration into [0,1]^d: ranges linearly (log ranges in
// log space), choices by index.
func encode(space domain.SearchSpace, h domain.HyperparameterSet) ([]float64, bool) {
	out := make([]float64, space.Len())
	for i, p := range space.Params {
		v, ok := h.Get(p.Name)
		if !ok {
			return nil, false
		}
		if p.IsCategorical() {
			idx := -1
			for j, c := range p.Choices {
				if c.Equal(v) {
					idx = j
					break
				}
			}
			if idx < 0 {
				return nil, false
			}
			if len(p.Choices) > 1 {
				out[i] = float64(idx) / float64(len(p.Choices)-1)
			}
			continue
		}
		f, ok := v.Float()
		if !ok {
			return nil, false
		}
		lo, hi := *p.Min, *p.Max
		if p.IsLog() {
			out[i] = (math.Log(f) - math.Log(lo)) / (math.Log(hi) - math.Log(lo))
		} else {
			out[i] = (f - lo) / (hi - lo)
		}
	}
	return clamp01(out), true
}

func decode(space domain.SearchSpace, u []float64) domain.HyperparameterSet {
	m := make(map[string]domain.Value, space.Len())
	for i, p := range space.Params {
		if p.IsCategorical() {
			idx := int(math.Round(u[i] * float64(len(p.Choices)-1)))
			m[p.Name] = p.Choices[idx]
			continue
		}
		lo, hi := *p.Min, *p.Max
		var f float64
		if p.IsLog() {
			f = math.Exp(math.Log(lo) + u[i]*(math.Log(hi)-math.Log(lo)))
		} else {
			f = lo + u[i]*(hi-lo)
		}
		if p.Step > 0 {
			f = lo + math.Round((f-lo)/p.Step)*p.Step
		}
		m[p.Name] = domain.Number(p.Clamp(f))
	}
	return domain.NewHyperparameterSet(m)
}
