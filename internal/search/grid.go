package search

import (
	"math"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// grid walks the Cartesian product like an odometer: the last declared
// parameter varies fastest.
type grid struct {
	names  []string
	values [][]domain.Value
	size   int
	budget int
	next   int
}

func newGrid(space domain.SearchSpace, budget, points int) *grid {
	g := &grid{budget: budget, size: 1}
	for _, p := range space.Params {
		vals := p.Discretize(points)
		g.names = append(g.names, p.Name)
		g.values = append(g.values, vals)
		switch {
		case len(vals) == 0:
			g.size = 0
		case g.size > math.MaxInt/len(vals):
			// Saturate; only the first budget configurations are ever walked.
			g.size = math.MaxInt
		default:
			g.size *= len(vals)
		}
	}
	if len(g.values) == 0 {
		g.size = 0
	}
	return g
}

func (g *grid) Method() domain.SearchMethod { return domain.MethodGrid }

func (g *grid) Next(_ []domain.TrialResult) (domain.HyperparameterSet, bool) {
	if g.next >= g.size || g.next >= g.budget {
		return domain.HyperparameterSet{}, false
	}
	h := g.at(g.next)
	g.next++
	return h, true
}

func (g *grid) at(idx int) domain.HyperparameterSet {
	m := make(map[string]domain.Value, len(g.names))
	for i := len(g.values) - 1; i >= 0; i-- {
		n := len(g.values[i])
		m[g.names[i]] = g.values[i][idx%n]
		idx /= n
	}
	return domain.NewHyperparameterSet(m)
}
