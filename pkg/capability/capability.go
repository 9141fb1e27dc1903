// Package capability defines the tags providers declare and tasks require.
package capability

import (
	"sort"
	"strings"
)

// Tag names a single provider strength.
type Tag string

const (
	Chat            Tag = "chat"
	Coding          Tag = "coding"
	Accuracy        Tag = "accuracy"
	Creative        Tag = "creative"
	Vision          Tag = "vision"
	LongContext     Tag = "long-context"
	Fast            Tag = "fast"
	Unrestricted    Tag = "unrestricted"
	SafetyFilter    Tag = "safety_filter"
	ImageGeneration Tag = "image_generation"
	VideoGeneration Tag = "video_generation"
)

// Set is a sorted, duplicate-free list of tags.
type Set []Tag

// NewSet builds a normalized set from tags.
func NewSet(tags ...Tag) Set {
	seen := make(map[Tag]struct{}, len(tags))
	out := make(Set, 0, len(tags))
	for _, t := range tags {
		t = Tag(strings.ToLower(strings.TrimSpace(string(t))))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse builds a set from plain strings, as found in configuration files.
func Parse(tags []string) Set {
	conv := make([]Tag, len(tags))
	for i, t := range tags {
		conv[i] = Tag(t)
	}
	return NewSet(conv...)
}

// Contains reports whether t is in the set.
func (s Set) Contains(t Tag) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= t })
	return i < len(s) && s[i] == t
}

// SupersetOf reports whether s holds every tag in other.
func (s Set) SupersetOf(other Set) bool {
	for _, t := range other {
		if !s.Contains(t) {
			return false
		}
	}
	return true
}

// Intersect returns the tags present in both sets.
func (s Set) Intersect(other Set) Set {
	var out Set
	for _, t := range s {
		if other.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// Union returns a new set with the tags of both.
func (s Set) Union(other Set) Set {
	merged := make([]Tag, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewSet(merged...)
}

// Strings returns the tags as plain strings.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

func (s Set) String() string {
	return "{" + strings.Join(s.Strings(), ",") + "}"
}
