package model

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// learning-rate parameters and the value at which they add no noise.
var lrReference = []struct {
	name string
	ref  float64
}{
	{"discriminator_lr", 2e-4},
	{"generator_lr", 2e-4},
	{"learning_rate", 1e-3},
}

type localTrainer struct {
	seed int64
}

// NewLocalTrainer returns an in-process baseline that resamples each column's
// marginal distribution. The amount of noise it adds depends on the
// hyperparameters, so searches over it behave like searches over a real model.
func NewLocalTrainer(seed int64) Trainer {
	return &localTrainer{seed: seed}
}

func (t *localTrainer) Train(ctx context.Context, family domain.ModelFamily, h domain.HyperparameterSet, data *domain.Dataset) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schema, ok := Lookup(family)
	if !ok {
		return nil, fmt.Errorf("unsupported model family %q", family)
	}
	if err := schema.Validate(h); err != nil {
		return nil, err
	}
	h = schema.Complete(h)
	if epochs, _ := h.Int("epochs"); epochs < 1 {
		return nil, fmt.Errorf("epochs must be positive, got %d", epochs)
	}
	if batch, _ := h.Int("batch_size"); batch < 1 {
		return nil, fmt.Errorf("batch_size must be positive, got %d", batch)
	}
	if data.Len() == 0 {
		return nil, domain.ErrEmptyDataset
	}

	m := &marginalModel{
		header: append([]string(nil), data.Header...),
		noise:  noiseLevel(h),
		rng:    rand.New(rand.NewSource(t.seed ^ int64(hashKey(h.Key())))),
	}
	for i := range data.Header {
		m.columns = append(m.columns, newMarginal(data.Column(i)))
	}
	return m, nil
}

func hashKey(s string) uint64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(s))
	return f.Sum64()
}

func noiseLevel(h domain.HyperparameterSet) float64 {
	epochs, _ := h.Float("epochs")
	noise := 0.25 * math.Sqrt(100/epochs)
	for _, p := range lrReference {
		if lr, ok := h.Float(p.name); ok && lr > 0 {
			noise *= 1 + 0.5*math.Abs(math.Log10(lr/p.ref))
		}
	}
	if batch, ok := h.Float("batch_size"); ok && batch > 0 {
		noise *= 1 + 0.1*math.Abs(math.Log2(batch/500))
	}
	return noise
}

type marginal struct {
	raw      []string
	numbers  []float64
	distinct []string
	numeric  bool
	integer  bool
	std      float64
	lo, hi   float64
}

func newMarginal(values []string) marginal {
	m := marginal{raw: values, numeric: len(values) > 0, integer: true}
	seen := map[string]struct{}{}
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			m.distinct = append(m.distinct, v)
		}
		if !m.numeric {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			m.numeric = false
			continue
		}
		if f != math.Trunc(f) {
			m.integer = false
		}
		m.numbers = append(m.numbers, f)
	}
	if m.numeric {
		_, m.std = stat.MeanStdDev(m.numbers, nil)
		if math.IsNaN(m.std) {
			m.std = 0
		}
		m.lo, m.hi = floats.Min(m.numbers), floats.Max(m.numbers)
	}
	return m
}

func (c marginal) draw(rng *rand.Rand, noise float64) string {
	if !c.numeric {
		if rng.Float64() < noise/2 {
			return c.distinct[rng.Intn(len(c.distinct))]
		}
		return c.raw[rng.Intn(len(c.raw))]
	}
	v := c.numbers[rng.Intn(len(c.numbers))] + rng.NormFloat64()*c.std*noise
	v = math.Max(c.lo, math.Min(c.hi, v))
	if c.integer {
		return strconv.FormatInt(int64(math.Round(v)), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type marginalModel struct {
	mu      sync.Mutex
	header  []string
	columns []marginal
	noise   float64
	rng     *rand.Rand
}

func (m *marginalModel) Sample(ctx context.Context, rows int) (*domain.Dataset, error) {
	if rows < 1 {
		return nil, errors.New("sample size must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &domain.Dataset{Header: append([]string(nil), m.header...), Rows: make([][]string, 0, rows)}
	for r := 0; r < rows; r++ {
		if r%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := make([]string, len(m.columns))
		for i, c := range m.columns {
			row[i] = c.draw(m.rng, m.noise)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
