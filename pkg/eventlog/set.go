package eventlog

import (
	"slices"
	"strings"

	json "github.com/goccy/go-json"
)

// ActivitySet is an immutable set of activities kept in canonical
// (lexicographic) order. The zero value is the empty set.
type ActivitySet struct {
	items []Activity
}

// NewActivitySet returns the set of the given activities. Duplicates are dropped.
func NewActivitySet(acts ...Activity) ActivitySet {
	if len(acts) == 0 {
		return ActivitySet{}
	}
	items := make([]Activity, len(acts))
	copy(items, acts)
	slices.Sort(items)
	return ActivitySet{items: slices.Compact(items)}
}

// Len returns the number of activities in the set.
func (s ActivitySet) Len() int {
	return len(s.items)
}

// IsEmpty reports whether the set has no members.
func (s ActivitySet) IsEmpty() bool {
	return len(s.items) == 0
}

// Contains reports whether a is a member of the set.
func (s ActivitySet) Contains(a Activity) bool {
	_, ok := slices.BinarySearch(s.items, a)
	return ok
}

// Without returns a copy of the set with a removed.
func (s ActivitySet) Without(a Activity) ActivitySet {
	i, ok := slices.BinarySearch(s.items, a)
	if !ok {
		return s
	}
	items := make([]Activity, 0, len(s.items)-1)
	items = append(items, s.items[:i]...)
	items = append(items, s.items[i+1:]...)
	return ActivitySet{items: items}
}

// Slice returns the members in canonical order. The caller owns the result.
func (s ActivitySet) Slice() []Activity {
	out := make([]Activity, len(s.items))
	copy(out, s.items)
	return out
}

// Strings returns the members as plain strings in canonical order.
func (s ActivitySet) Strings() []string {
	out := make([]string, len(s.items))
	for i, a := range s.items {
		out[i] = string(a)
	}
	return out
}

// Equal reports whether both sets have the same members.
func (s ActivitySet) Equal(o ActivitySet) bool {
	return slices.Equal(s.items, o.items)
}

// IsSubsetOf reports whether every member of s is a member of o.
func (s ActivitySet) IsSubsetOf(o ActivitySet) bool {
	for _, a := range s.items {
		if !o.Contains(a) {
			return false
		}
	}
	return true
}

// Difference returns the members of s that are not in o.
func (s ActivitySet) Difference(o ActivitySet) ActivitySet {
	var items []Activity
	for _, a := range s.items {
		if !o.Contains(a) {
			items = append(items, a)
		}
	}
	return ActivitySet{items: items}
}

// String renders the set as "{A, B, C}".
func (s ActivitySet) String() string {
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}

// MarshalJSON encodes the set as a sorted array of labels.
func (s ActivitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of labels.
func (s *ActivitySet) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	acts := make([]Activity, len(labels))
	for i, l := range labels {
		acts[i] = Activity(l)
	}
	*s = NewActivitySet(acts...)
	return nil
}
