package search

import (
	"math"
	"math/rand"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// maxRedraws bounds the attempts to find an unseen configuration.
const maxRedraws = 100

// random samples without replacement. Spaces no larger than the budget are
// enumerated as the full grid.
type random struct {
	full    *grid
	sampler *sampler
	budget  int
	emitted int
}

func newRandom(space domain.SearchSpace, budget, points int, rng *rand.Rand) *random {
	r := &random{budget: budget}
	if space.GridSize(points) <= budget {
		r.full = newGrid(space, budget, points)
		return r
	}
	r.sampler = newSampler(space, rng)
	return r
}

func (r *random) Method() domain.SearchMethod { return domain.MethodRandom }

func (r *random) Next(_ []domain.TrialResult) (domain.HyperparameterSet, bool) {
	if r.full != nil {
		return r.full.Next(nil)
	}
	if r.emitted >= r.budget {
		return domain.HyperparameterSet{}, false
	}
	h, ok := r.sampler.fresh()
	if !ok {
		return domain.HyperparameterSet{}, false
	}
	r.emitted++
	return h, true
}

// sampler draws uniform configurations and remembers what it handed out.
type sampler struct {
	space domain.SearchSpace
	rng   *rand.Rand
	seen  map[string]struct{}
}

func newSampler(space domain.SearchSpace, rng *rand.Rand) *sampler {
	return &sampler{space: space, rng: rng, seen: make(map[string]struct{})}
}

func (s *sampler) markSeen(h domain.HyperparameterSet) { s.seen[h.Key()] = struct{}{} }

func (s *sampler) isSeen(h domain.HyperparameterSet) bool {
	_, ok := s.seen[h.Key()]
	return ok
}

// fresh returns an unseen configuration, or false after maxRedraws duplicates.
func (s *sampler) fresh() (domain.HyperparameterSet, bool) {
	for i := 0; i < maxRedraws; i++ {
		h := s.draw()
		if s.isSeen(h) {
			continue
		}
		s.markSeen(h)
		return h, true
	}
	return domain.HyperparameterSet{}, false
}

func (s *sampler) draw() domain.HyperparameterSet {
	m := make(map[string]domain.Value, s.space.Len())
	for _, p := range s.space.Params {
		m[p.Name] = s.drawParam(p)
	}
	return domain.NewHyperparameterSet(m)
}

func (s *sampler) drawParam(p domain.ParamSpec) domain.Value {
	if p.IsCategorical() {
		return p.Choices[s.rng.Intn(len(p.Choices))]
	}
	if n := p.StepCount(); n > 0 {
		return domain.Number(p.StepValue(s.rng.Intn(n)))
	}
	lo, hi := *p.Min, *p.Max
	u := s.rng.Float64()
	var f float64
	if p.IsLog() {
		f = math.Exp(math.Log(lo) + u*(math.Log(hi)-math.Log(lo)))
	} else {
		f = lo + u*(hi-lo)
	}
	return domain.Number(p.Clamp(f))
}
