package codec

import (
	"math"
	"math/big"
	"reflect"
)

type undefinedType struct{}

// Undefined is the host-side stand-in for JavaScript undefined. nil stands
// for null.
var Undefined = undefinedType{}

func (undefinedType) String() string { return "undefined" }

// IsUndefined reports whether v is Undefined
func IsUndefined(v any) bool {
	_, ok := v.(undefinedType)
	return ok
}

// Symbol is a host-side symbol. It cannot cross the boundary and encodes
// as undefined.
type Symbol struct {
	Description string
}

// Error is an Error object passed as a value (not thrown)
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Entry is one key/value pair of a Map
type Entry struct {
	Key   any
	Value any
}

// Map is an insertion-ordered map with keys of any type, the host-side form
// of a JavaScript Map.
type Map struct {
	Entries []Entry
}

// NewMap creates a Map from entries, later duplicates replacing earlier ones
func NewMap(entries ...Entry) *Map {
	m := &Map{}
	for _, e := range entries {
		m.Set(e.Key, e.Value)
	}
	return m
}

// Get returns the value stored under key
func (m *Map) Get(key any) (any, bool) {
	for _, e := range m.Entries {
		if sameValueZero(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Set stores value under key, keeping the original insertion position
func (m *Map) Set(key, value any) {
	for i, e := range m.Entries {
		if sameValueZero(e.Key, key) {
			m.Entries[i].Value = value
			return
		}
	}
	m.Entries = append(m.Entries, Entry{Key: key, Value: value})
}

// Len returns the number of entries
func (m *Map) Len() int { return len(m.Entries) }

// Set is an insertion-ordered collection of unique values
type Set struct {
	Items []any
}

// NewSet creates a Set, dropping duplicates
func NewSet(items ...any) *Set {
	s := &Set{}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Has reports whether item is in the set
func (s *Set) Has(item any) bool {
	for _, existing := range s.Items {
		if sameValueZero(existing, item) {
			return true
		}
	}
	return false
}

// Add inserts item if absent
func (s *Set) Add(item any) {
	if !s.Has(item) {
		s.Items = append(s.Items, item)
	}
}

// Len returns the number of items
func (s *Set) Len() int { return len(s.Items) }

// sameValueZero compares like JavaScript collections do: NaN equals NaN,
// BigInts by value, reference types by identity.
func sameValueZero(a, b any) bool {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok && math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
	}

	if ba, ok := a.(*big.Int); ok {
		if bb, ok := b.(*big.Int); ok && ba != nil && bb != nil {
			return ba.Cmp(bb) == 0
		}
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}
	if ta.Comparable() {
		return a == b
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return va.Pointer() == vb.Pointer() && (va.Kind() != reflect.Slice || va.Len() == vb.Len())
	}
	return false
}
