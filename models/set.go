package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Set is a grant-once collection of string-like values. It is persisted as a
// sorted JSON array so that rows compare equal regardless of insertion order.
type Set[T ~string] map[T]struct{}

// NewSet builds a set from the given values, dropping duplicates.
func NewSet[T ~string](values ...T) Set[T] {
	s := make(Set[T], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s Set[T]) Add(v T) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set[T]) Sorted() []T {
	out := make([]T, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s Set[T]) Clone() Set[T] {
	cp := make(Set[T], len(s))
	for v := range s {
		cp[v] = struct{}{}
	}
	return cp
}

func (s Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var values []T
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}

// Value stores the set through datatypes.JSONSlice.
func (s Set[T]) Value() (driver.Value, error) {
	return datatypes.NewJSONSlice(s.Sorted()).Value()
}

func (s *Set[T]) Scan(value interface{}) error {
	var values datatypes.JSONSlice[T]
	if value != nil {
		if err := values.Scan(value); err != nil {
			return err
		}
	}
	*s = NewSet(values...)
	return nil
}

func (Set[T]) GormDataType() string {
	return "json"
}

func (Set[T]) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "JSON"
	}
}
