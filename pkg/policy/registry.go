// Package policy holds the pluggable rules for routing sensitive requests.
package policy

import (
	"fmt"
	"sort"

	"github.com/zen-systems/routegate/pkg/capability"
)

// Well-known sensitivity policy IDs.
const (
	RequireUnrestricted = "require_unrestricted"
	RequireFiltered     = "require_filtered"
	Ignore              = "ignore"
)

// Requirements are the capability constraints a policy adds for sensitive requests.
type Requirements struct {
	Require capability.Set
	Exclude capability.Set
}

// Policy decides which providers may serve a request, by sensitivity.
type Policy struct {
	ID        string
	Sensitive Requirements
	// Always applies to every request regardless of sensitivity.
	Always Requirements
}

// Constraints returns the tags a provider must have and must not have.
func (p Policy) Constraints(sensitive bool) (require, exclude capability.Set) {
	require = p.Always.Require
	exclude = p.Always.Exclude
	if sensitive {
		require = require.Union(p.Sensitive.Require)
		exclude = exclude.Union(p.Sensitive.Exclude)
	}
	return require, exclude
}

// Registry holds policies by ID.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry returns a registry holding the built-in policies.
func NewRegistry() *Registry {
	r := &Registry{
		policies: make(map[string]Policy),
	}

	r.Register(Policy{
		ID: RequireUnrestricted,
		Sensitive: Requirements{
			Require: capability.NewSet(capability.Unrestricted),
		},
	})

	r.Register(Policy{
		ID: RequireFiltered,
		Sensitive: Requirements{
			Require: capability.NewSet(capability.SafetyFilter),
			Exclude: capability.NewSet(capability.Unrestricted),
		},
	})

	r.Register(Policy{ID: Ignore})

	return r
}

// Register adds p, replacing any policy with the same ID.
func (r *Registry) Register(p Policy) {
	r.policies[p.ID] = p
}

// Get returns the policy registered under id.
func (r *Registry) Get(id string) (Policy, error) {
	p, ok := r.policies[id]
	if !ok {
		return Policy{}, fmt.Errorf("policy not found: %s", id)
	}
	return p, nil
}

// IDs lists registered policy IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
