// Copyright (C) 2015 The Protocol Authors.

// Package vector implements the per-file causal clock (C1): a version
// vector keyed by peer identity, with the comparison, merge, and increment
// operations the rest of the sync engine builds on.
package vector

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/meshsync/syncd/internal/peerid"
)

// Counter is one peer's component of a Vector.
type Counter struct {
	ID    peerid.ID
	Value uint32
}

// Vector is a set of Counters, always kept sorted by ID with no duplicate
// IDs. A missing ID is equivalent to a Counter with Value 0 (spec 3.1): the
// zero value of Vector is the empty vector, valid to use directly.
type Vector []Counter

// Counter returns the value for the given peer, or 0 if absent.
func (v Vector) Counter(id peerid.ID) uint32 {
	for _, c := range v {
		if c.ID == id {
			return c.Value
		}
	}
	return 0
}

// Update returns a copy of v with id's component incremented by one.
// It never wraps: incrementing a component already at the maximum
// uint32 panics, reporting the overflow as a fatal bug (spec 4.1). In
// practice a vector needs on the order of 2^32 local edits to a single
// path before this is reachable.
func (v Vector) Update(id peerid.ID) Vector {
	nv := v.Copy()
	for i := range nv {
		if nv[i].ID == id {
			if nv[i].Value == math.MaxUint32 {
				panic(fmt.Sprintf("vector: counter overflow for peer %v", id))
			}
			nv[i].Value++
			return nv
		}
	}
	nv = append(nv, Counter{ID: id, Value: 1})
	sort.Slice(nv, func(i, j int) bool { return less(nv[i].ID, nv[j].ID) })
	return nv
}

// Copy returns an independent copy of v.
func (v Vector) Copy() Vector {
	if len(v) == 0 {
		return nil
	}
	nv := make(Vector, len(v))
	copy(nv, v)
	return nv
}

// Merge returns the pointwise maximum of a and b. Merge is commutative,
// associative, and idempotent.
func Merge(a, b Vector) Vector {
	var out Vector
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].ID == b[j].ID:
			c := a[i]
			if b[j].Value > c.Value {
				c.Value = b[j].Value
			}
			out = append(out, c)
			i++
			j++
		case less(a[i].ID, b[j].ID):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// Ordering is the four-valued result of comparing two Vectors under the
// standard partial order (spec 3.1).
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "Equal"
	case Before:
		return "Before"
	case After:
		return "After"
	case Concurrent:
		return "Concurrent"
	default:
		return "Invalid"
	}
}

// Compare returns how a relates to b. Equal: identical in every component.
// Before: a <= b and a != b. After: a >= b and a != b. Concurrent:
// neither dominates the other.
func Compare(a, b Vector) Ordering {
	var aGreater, bGreater bool

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && (j >= len(b) || less(a[i].ID, b[j].ID)):
			if a[i].Value > 0 {
				aGreater = true
			}
			i++
		case j < len(b) && (i >= len(a) || less(b[j].ID, a[i].ID)):
			if b[j].Value > 0 {
				bGreater = true
			}
			j++
		default:
			if a[i].Value > b[j].Value {
				aGreater = true
			} else if b[j].Value > a[i].Value {
				bGreater = true
			}
			i++
			j++
		}
	}

	switch {
	case aGreater && bGreater:
		return Concurrent
	case aGreater:
		return After
	case bGreater:
		return Before
	default:
		return Equal
	}
}

// Merge is the method form of Merge(v, o), for chaining.
func (v Vector) Merge(o Vector) Vector { return Merge(v, o) }

// Compare is the method form of Compare(v, o).
func (v Vector) Compare(o Vector) Ordering { return Compare(v, o) }

func (v Vector) Equal(o Vector) bool      { return Compare(v, o) == Equal }
func (v Vector) Concurrent(o Vector) bool { return Compare(v, o) == Concurrent }
func (v Vector) GreaterEqual(o Vector) bool {
	r := Compare(v, o)
	return r == Equal || r == After
}
func (v Vector) LesserEqual(o Vector) bool {
	r := Compare(v, o)
	return r == Equal || r == Before
}

// IsEmpty reports whether v has no positive components (spec I1: every
// stored state must have a non-empty VV; a zero-value FileMetadata.VV
// flags an "unknown causal history" file per 4.4 step 6/8).
func (v Vector) IsEmpty() bool {
	for _, c := range v {
		if c.Value > 0 {
			return false
		}
	}
	return true
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = fmt.Sprintf("%s:%d", c.ID.String()[:7], c.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func less(a, b peerid.ID) bool { return a.Compare(b) < 0 }
