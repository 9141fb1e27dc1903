package config

import (
	"fmt"
	"sort"
)

// ModelAliases maps short model names to canonical model identifiers.
type ModelAliases struct {
	aliases map[string]string
}

// NewModelAliases copies the alias table.
func NewModelAliases(aliases map[string]string) *ModelAliases {
	m := &ModelAliases{aliases: make(map[string]string, len(aliases))}
	for k, v := range aliases {
		m.aliases[k] = v
	}
	return m
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil {
		return modelOrAlias
	}
	if canonical, ok := a.aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.aliases[name]
	return ok
}

// Names returns the aliases in sorted order.
func (a *ModelAliases) Names() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.aliases))
	for k := range a.aliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Check reports aliases that point at other aliases. Resolution is a single
// lookup, so a chained alias would reach the backend unresolved.
func (a *ModelAliases) Check() []error {
	var errs []error
	for _, name := range a.Names() {
		target := a.aliases[name]
		if target == "" {
			errs = append(errs, fmt.Errorf("alias %q is empty", name))
			continue
		}
		if a.IsAlias(target) {
			errs = append(errs, fmt.Errorf("alias %q points at alias %q", name, target))
		}
	}
	return errs
}
