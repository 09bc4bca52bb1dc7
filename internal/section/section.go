// Package section implements the nested, ordered key/value structure that
// shopkeepers and shop objects read from and write into when they are loaded
// or saved.
//
// Values inserted with Set are copied. A saved tree may be encoded on another
// goroutine after the owner loop has moved on, so callers must never be able
// to mutate data that is already part of a section.
package section

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Section struct {
	keys   []string
	values map[string]any
}

func New() *Section {
	return &Section{values: map[string]any{}}
}

// Keys returns the keys in insertion order.
func (s *Section) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *Section) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *Section) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.values[key]
	return ok
}

func (s *Section) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Set stores a copy of v under key. A nil value removes the key.
func (s *Section) Set(key string, v any) {
	if v == nil {
		s.Remove(key)
		return
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = copyValue(v)
}

func (s *Section) Remove(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// CreateSection replaces key with a new empty section and returns it.
func (s *Section) CreateSection(key string) *Section {
	child := New()
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = child
	return child
}

// Section returns the child section at key, or nil if key is missing or not a section.
func (s *Section) Section(key string) *Section {
	v, _ := s.Get(key)
	child, _ := v.(*Section)
	return child
}

func (s *Section) IsSection(key string) bool { return s.Section(key) != nil }

// String returns the value at key as a string. Scalars are formatted; sections,
// lists and missing keys yield def.
func (s *Section) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return def
}

func (s *Section) IsString(key string) bool {
	v, _ := s.Get(key)
	_, ok := v.(string)
	return ok
}

// Int returns the value at key as an int. Integral floats and numeric strings
// are accepted; anything else yields def.
func (s *Section) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, ok := toInt(v)
	if !ok {
		return def
	}
	return n
}

func (s *Section) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	return def
}

func (s *Section) StringList(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// SectionList returns the section elements of the list at key. The returned
// sections belong to the tree; use Clone before modifying them.
func (s *Section) SectionList(key string) []*Section {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []*Section:
		out := make([]*Section, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]*Section, 0, len(t))
		for _, e := range t {
			if c, ok := e.(*Section); ok {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	c := &Section{
		keys:   make([]string, len(s.keys)),
		values: make(map[string]any, len(s.values)),
	}
	copy(c.keys, s.keys)
	for k, v := range s.values {
		c.values[k] = copyValue(v)
	}
	return c
}

// ToMap converts the tree into plain maps and slices (e.g. for JSON encoding).
func (s *Section) ToMap() map[string]any {
	out := make(map[string]any, len(s.values))
	for _, k := range s.keys {
		out[k] = plain(s.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Section:
		return t.ToMap()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case []*Section:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e.ToMap()
		}
		return out
	}
	return v
}

func copyValue(v any) any {
	switch t := v.(type) {
	case *Section:
		return t.Clone()
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []int:
		out := make([]int, len(t))
		copy(out, t)
		return out
	case []*Section:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e.Clone()
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case map[string]any:
		c := New()
		for _, k := range sortedKeys(t) {
			c.Set(k, t[k])
		}
		return c
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float32:
		return float64(t)
	}
	return v
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func (s *Section) GoString() string {
	return fmt.Sprintf("section%v", s.ToMap())
}
