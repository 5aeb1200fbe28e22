// Package model defines the supported generative model families and the
// backends that train them.
package model

import (
	"fmt"
	"sort"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// Schema is the static parameter declaration of one model family.
type Schema struct {
	Family       domain.ModelFamily
	Defaults     domain.HyperparameterSet
	DefaultSpace domain.SearchSpace
}

var schemas = map[domain.ModelFamily]Schema{
	domain.FamilyCTGAN: {
		Family: domain.FamilyCTGAN,
		Defaults: domain.NumericSet(map[string]float64{
			"epochs":              300,
			"batch_size":          500,
			"generator_lr":        2e-4,
			"discriminator_lr":    2e-4,
			"generator_decay":     1e-6,
			"discriminator_decay": 1e-6,
		}),
		DefaultSpace: domain.NewSearchSpace(
			domain.IntRange("epochs", 50, 1000),
			domain.NumericChoices("batch_size", 250, 500, 1000),
			domain.LogRange("generator_lr", 1e-5, 1e-3),
			domain.LogRange("discriminator_lr", 1e-5, 1e-3),
			domain.LogRange("generator_decay", 1e-7, 1e-5),
			domain.LogRange("discriminator_decay", 1e-7, 1e-5),
		),
	},
	domain.FamilyTVAE: {
		Family: domain.FamilyTVAE,
		Defaults: domain.NumericSet(map[string]float64{
			"epochs":        300,
			"batch_size":    500,
			"learning_rate": 1e-3,
		}),
		DefaultSpace: domain.NewSearchSpace(
			domain.IntRange("epochs", 50, 1000),
			domain.NumericChoices("batch_size", 250, 500, 1000),
			domain.LogRange("learning_rate", 1e-4, 1e-2),
		),
	},
}

// defaultOptimizeParams are searched when a request names none.
var defaultOptimizeParams = map[domain.ModelFamily][]string{
	domain.FamilyCTGAN: {"epochs", "batch_size", "generator_lr", "discriminator_lr"},
	domain.FamilyTVAE:  {"epochs", "batch_size", "learning_rate"},
}

// Lookup returns the schema of family.
func Lookup(family domain.ModelFamily) (Schema, bool) {
	s, ok := schemas[family]
	return s, ok
}

// Families lists the supported families in stable order.
func Families() []domain.ModelFamily {
	out := make([]domain.ModelFamily, 0, len(schemas))
	for f := range schemas {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allows reports whether name is a declared parameter of the family.
func (s Schema) Allows(name string) bool {
	_, ok := s.Defaults.Get(name)
	return ok
}

// Validate rejects parameters the family does not declare and non-numeric values.
func (s Schema) Validate(h domain.HyperparameterSet) error {
	for _, name := range h.Names() {
		if !s.Allows(name) {
			return fmt.Errorf("parameter %q is not supported by %s", name, s.Family)
		}
		if _, ok := h.Float(name); !ok {
			return fmt.Errorf("parameter %q must be numeric", name)
		}
	}
	return nil
}

// ValidateSpace checks that every searched parameter is declared.
func (s Schema) ValidateSpace(space domain.SearchSpace) error {
	for _, name := range space.Names() {
		if !s.Allows(name) {
			return fmt.Errorf("parameter %q is not supported by %s", name, s.Family)
		}
	}
	return nil
}

// Complete fills parameters missing from h with the family defaults.
func (s Schema) Complete(h domain.HyperparameterSet) domain.HyperparameterSet {
	return s.Defaults.Merge(h)
}

// SpaceFor returns the default space restricted to params, or to the
// family's usual optimization targets when params is empty.
func (s Schema) SpaceFor(params []string) domain.SearchSpace {
	if len(params) == 0 {
		params = defaultOptimizeParams[s.Family]
	}
	return s.DefaultSpace.Restrict(params)
}
