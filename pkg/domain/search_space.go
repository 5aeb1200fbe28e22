package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultGridPoints is the number of values a continuous range is discretized
// into when it declares no step.
const DefaultGridPoints = 5

// MaxParamSteps caps the values a stepped range may produce. Wider ranges
// must use a larger step or drop the step and let the grid discretize them.
const MaxParamSteps = 10000

type Scale string

const (
	ScaleLinear Scale = "linear"
	ScaleLog    Scale = "log"
)

// ParamSpec declares the domain of one hyperparameter: either a continuous
// range (Min/Max, optional Step and Scale) or a list of Choices.
type ParamSpec struct {
	Name    string   `json:"name" yaml:"name"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step    float64  `json:"step,omitempty" yaml:"step,omitempty"`
	Scale   Scale    `json:"scale,omitempty" yaml:"scale,omitempty"`
	Integer bool     `json:"integer,omitempty" yaml:"integer,omitempty"`
	Choices []Value  `json:"choices,omitempty" yaml:"-"`
}

// Range builds a continuous linear spec.
func Range(name string, min, max float64) ParamSpec {
	return ParamSpec{Name: name, Min: &min, Max: &max, Scale: ScaleLinear}
}

// LogRange builds a continuous log-scale spec.
func LogRange(name string, min, max float64) ParamSpec {
	return ParamSpec{Name: name, Min: &min, Max: &max, Scale: ScaleLog}
}

// IntRange builds an integer-valued linear spec.
func IntRange(name string, min, max int) ParamSpec {
	p := Range(name, float64(min), float64(max))
	p.Integer = true
	return p
}

// Choices builds a categorical spec.
func Choices(name string, values ...Value) ParamSpec {
	return ParamSpec{Name: name, Choices: values}
}

// NumericChoices builds a categorical spec of numbers.
func NumericChoices(name string, values ...float64) ParamSpec {
	vals := make([]Value, len(values))
	for i, f := range values {
		vals[i] = Number(f)
	}
	return Choices(name, vals...)
}

func (p ParamSpec) IsCategorical() bool { return len(p.Choices) > 0 }

func (p ParamSpec) IsLog() bool { return p.Scale == ScaleLog }

func (p ParamSpec) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("parameter name is required")
	}
	if p.IsCategorical() {
		if p.Min != nil || p.Max != nil {
			return fmt.Errorf("parameter %s: choices and range are mutually exclusive", p.Name)
		}
		for i := range p.Choices {
			for j := i + 1; j < len(p.Choices); j++ {
				if p.Choices[i].Equal(p.Choices[j]) {
					return fmt.Errorf("parameter %s: duplicate choice %s", p.Name, p.Choices[i])
				}
			}
		}
		return nil
	}
	if p.Min == nil || p.Max == nil {
		return fmt.Errorf("parameter %s: needs choices or min/max", p.Name)
	}
	if !(*p.Min < *p.Max) {
		return fmt.Errorf("parameter %s: min must be lower than max", p.Name)
	}
	switch p.Scale {
	case "", ScaleLinear:
	case ScaleLog:
		if *p.Min <= 0 {
			return fmt.Errorf("parameter %s: log scale needs min > 0", p.Name)
		}
	default:
		return fmt.Errorf("parameter %s: unknown scale %q", p.Name, p.Scale)
	}
	if p.Step < 0 || math.IsNaN(p.Step) || math.IsInf(p.Step, 0) {
		return fmt.Errorf("parameter %s: step must be positive", p.Name)
	}
	if p.Step > 0 && (*p.Max-*p.Min)/p.Step > MaxParamSteps {
		return fmt.Errorf("parameter %s: step %g yields more than %d values in [%g, %g]", p.Name, p.Step, MaxParamSteps, *p.Min, *p.Max)
	}
	return nil
}

// StepCount is the number of values a stepped range yields before rounding:
// every whole step from Min plus Max when it falls between two steps. It is
// zero for categorical and unstepped specs.
func (p ParamSpec) StepCount() int {
	if p.IsCategorical() || p.Step <= 0 || p.Min == nil || p.Max == nil {
		return 0
	}
	lo, hi := *p.Min, *p.Max
	n := int(math.Floor((hi-lo)/p.Step + 1e-9))
	if last := lo + float64(n)*p.Step; hi-last > 1e-9*math.Max(1, math.Abs(hi)) {
		return n + 2
	}
	return n + 1
}

// StepValue returns the i-th value of a stepped range, 0 <= i < StepCount().
func (p ParamSpec) StepValue(i int) float64 {
	if i == p.StepCount()-1 {
		return p.Clamp(*p.Max)
	}
	return p.Clamp(*p.Min + float64(i)*p.Step)
}

// Discretize returns the grid values of the parameter. Ranges without a step
// are split into points values (geometric spacing on a log scale).
func (p ParamSpec) Discretize(points int) []Value {
	if p.IsCategorical() {
		out := make([]Value, len(p.Choices))
		copy(out, p.Choices)
		return out
	}
	if p.Min == nil || p.Max == nil {
		return nil
	}
	lo, hi := *p.Min, *p.Max
	var raw []float64
	if n := p.StepCount(); n > 0 {
		raw = make([]float64, n)
		for i := range raw {
			raw[i] = p.StepValue(i)
		}
	} else {
		if points < 2 {
			points = DefaultGridPoints
		}
		for i := 0; i < points; i++ {
			t := float64(i) / float64(points-1)
			if p.IsLog() {
				raw = append(raw, math.Exp(math.Log(lo)+t*(math.Log(hi)-math.Log(lo))))
			} else {
				raw = append(raw, lo+t*(hi-lo))
			}
		}
	}
	out := make([]Value, 0, len(raw))
	seen := make(map[float64]struct{}, len(raw))
	for _, f := range raw {
		f = p.Clamp(f)
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, Number(f))
	}
	return out
}

// Clamp bounds f to the range and rounds integer parameters.
func (p ParamSpec) Clamp(f float64) float64 {
	if p.Min != nil && f < *p.Min {
		f = *p.Min
	}
	if p.Max != nil && f > *p.Max {
		f = *p.Max
	}
	if p.Integer {
		f = math.Round(f)
	}
	return f
}

// Contains reports whether v lies in the declared domain.
func (p ParamSpec) Contains(v Value) bool {
	if p.IsCategorical() {
		for _, c := range p.Choices {
			if c.Equal(v) {
				return true
			}
		}
		return false
	}
	f, ok := v.Float()
	if !ok || p.Min == nil || p.Max == nil {
		return false
	}
	return f >= *p.Min && f <= *p.Max
}

// SearchSpace is the ordered set of parameters a search draws from. The
// declared order is the canonical grid order.
type SearchSpace struct {
	Params []ParamSpec `json:"params"`
}

func NewSearchSpace(params ...ParamSpec) SearchSpace {
	return SearchSpace{Params: params}
}

func (s SearchSpace) Len() int { return len(s.Params) }

func (s SearchSpace) Names() []string {
	out := make([]string, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Name
	}
	return out
}

func (s SearchSpace) Lookup(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

func (s SearchSpace) Validate() error {
	if len(s.Params) == 0 {
		return errors.New("search space is empty")
	}
	seen := make(map[string]struct{}, len(s.Params))
	for _, p := range s.Params {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("parameter %s declared twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// GridSize is the size of the Cartesian product of the discretized params.
func (s SearchSpace) GridSize(points int) int {
	if len(s.Params) == 0 {
		return 0
	}
	size := 1
	for _, p := range s.Params {
		n := len(p.Discretize(points))
		if n == 0 {
			return 0
		}
		if size > math.MaxInt/n {
			return math.MaxInt
		}
		size *= n
	}
	return size
}

// Contains checks that every parameter of h is declared and in range.
func (s SearchSpace) Contains(h HyperparameterSet) error {
	for _, name := range h.Names() {
		p, ok := s.Lookup(name)
		if !ok {
			return fmt.Errorf("parameter %s is not declared in the search space", name)
		}
		v, _ := h.Get(name)
		if !p.Contains(v) {
			return fmt.Errorf("parameter %s=%s is outside the search space", name, v)
		}
	}
	return nil
}

// Restrict keeps only the named parameters, in declared order.
func (s SearchSpace) Restrict(names []string) SearchSpace {
	if len(names) == 0 {
		return s
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := SearchSpace{}
	for _, p := range s.Params {
		if _, ok := want[p.Name]; ok {
			out.Params = append(out.Params, p)
		}
	}
	return out
}
