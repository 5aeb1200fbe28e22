// Package quality scores synthetic data against the real data it imitates.
package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

var ErrNoSharedColumns = errors.New("real and synthetic data share no columns")

// Scorer returns a fidelity score in [0,1]; higher is better.
type Scorer interface {
	Score(ctx context.Context, real, synthetic *domain.Dataset) (float64, error)
}

// ColumnShapes averages a per-column similarity: 1 - KS statistic for numeric
// columns and 1 - total variation distance for categorical ones.
type ColumnShapes struct{}

func NewColumnShapes() *ColumnShapes { return &ColumnShapes{} }

func (s *ColumnShapes) Score(ctx context.Context, real, synthetic *domain.Dataset) (float64, error) {
	if real.Len() == 0 || synthetic.Len() == 0 {
		return 0, errors.New("cannot score an empty dataset")
	}
	var total float64
	var n int
	for i, name := range real.Header {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		j := synthetic.ColumnIndex(name)
		if j < 0 {
			continue
		}
		total += columnScore(real.Column(i), synthetic.Column(j))
		n++
	}
	if n == 0 {
		return 0, ErrNoSharedColumns
	}
	if n != len(real.Header) {
		return 0, fmt.Errorf("synthetic data is missing %d of %d columns", len(real.Header)-n, len(real.Header))
	}
	return clamp(total / float64(n)), nil
}

func columnScore(real, synth []string) float64 {
	rx, rok := numbers(real)
	sx, sok := numbers(synth)
	if rok && sok {
		sort.Float64s(rx)
		sort.Float64s(sx)
		return 1 - stat.KolmogorovSmirnov(rx, nil, sx, nil)
	}
	return 1 - totalVariation(real, synth)
}

func numbers(values []string) ([]float64, bool) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return nil, false
		}
		out = append(out, f)
	}
	return out, len(out) > 0
}

func totalVariation(a, b []string) float64 {
	pa, pb := frequencies(a), frequencies(b)
	var sum float64
	for k, p := range pa {
		sum += math.Abs(p - pb[k])
	}
	for k, q := range pb {
		if _, ok := pa[k]; !ok {
			sum += q
		}
	}
	return sum / 2
}

func frequencies(values []string) map[string]float64 {
	out := make(map[string]float64)
	for _, v := range values {
		out[v]++
	}
	for k := range out {
		out[k] /= float64(len(values))
	}
	return out
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
