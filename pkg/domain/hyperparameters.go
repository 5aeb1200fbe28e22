package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindNumber valueKind = iota
	kindText
)

// Value is a single hyperparameter value: either a number or a text label.
type Value struct {
	kind valueKind
	num  float64
	text string
}

func Number(f float64) Value { return Value{kind: kindNumber, num: f} }
func Text(s string) Value    { return Value{kind: kindText, text: s} }

func (v Value) IsNumber() bool { return v.kind == kindNumber }

// Float returns the numeric value. Text values report ok=false.
func (v Value) Float() (float64, bool) {
	if v.kind != kindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) String() string {
	if v.kind == kindText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == kindText {
		return v.text == o.text
	}
	return v.num == o.num
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == kindText {
		return json.Marshal(v.text)
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return nil, fmt.Errorf("hyperparameter value %v is not representable", v.num)
	}
	return json.Marshal(v.num)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("hyperparameter value must be a number or string: %w", err)
	}
	*v = Number(f)
	return nil
}

// HyperparameterSet is an immutable named configuration for a generative model.
// The zero value is an empty set.
type HyperparameterSet struct {
	names  []string
	values map[string]Value
}

// NewHyperparameterSet copies m into a new set.
func NewHyperparameterSet(m map[string]Value) HyperparameterSet {
	h := HyperparameterSet{
		names:  make([]string, 0, len(m)),
		values: make(map[string]Value, len(m)),
	}
	for k, v := range m {
		h.names = append(h.names, k)
		h.values[k] = v
	}
	sort.Strings(h.names)
	return h
}

// NumericSet is a convenience constructor for all-numeric configurations.
func NumericSet(m map[string]float64) HyperparameterSet {
	vals := make(map[string]Value, len(m))
	for k, f := range m {
		vals[k] = Number(f)
	}
	return NewHyperparameterSet(vals)
}

func (h HyperparameterSet) Len() int { return len(h.names) }

// Names returns the parameter names in sorted order.
func (h HyperparameterSet) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

func (h HyperparameterSet) Get(name string) (Value, bool) {
	v, ok := h.values[name]
	return v, ok
}

func (h HyperparameterSet) Float(name string) (float64, bool) {
	v, ok := h.values[name]
	if !ok {
		return 0, false
	}
	return v.Float()
}

func (h HyperparameterSet) Int(name string) (int, bool) {
	f, ok := h.Float(name)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// With returns a copy of h with name set to v.
func (h HyperparameterSet) With(name string, v Value) HyperparameterSet {
	m := h.Map()
	m[name] = v
	return NewHyperparameterSet(m)
}

// Merge returns a copy of h overlaid with every entry of o.
func (h HyperparameterSet) Merge(o HyperparameterSet) HyperparameterSet {
	m := h.Map()
	for k, v := range o.values {
		m[k] = v
	}
	return NewHyperparameterSet(m)
}

// Map returns a copy of the underlying entries.
func (h HyperparameterSet) Map() map[string]Value {
	m := make(map[string]Value, len(h.values))
	for k, v := range h.values {
		m[k] = v
	}
	return m
}

// Key is a canonical encoding used to detect repeated configurations.
func (h HyperparameterSet) Key() string {
	var sb strings.Builder
	for i, n := range h.names {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(h.values[n].String())
	}
	return sb.String()
}

func (h HyperparameterSet) Equal(o HyperparameterSet) bool {
	if len(h.names) != len(o.names) {
		return false
	}
	for _, n := range h.names {
		ov, ok := o.values[n]
		if !ok || !h.values[n].Equal(ov) {
			return false
		}
	}
	return true
}

func (h HyperparameterSet) String() string { return "{" + h.Key() + "}" }

func (h HyperparameterSet) MarshalJSON() ([]byte, error) {
	if h.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(h.values)
}

func (h *HyperparameterSet) UnmarshalJSON(b []byte) error {
	var m map[string]Value
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*h = NewHyperparameterSet(m)
	return nil
}
