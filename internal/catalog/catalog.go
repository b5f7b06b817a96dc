// Package catalog holds the filter catalog: the fixed category → tag mapping
// the query interpreter is allowed to choose from.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// LoadWarning is shown to users when the catalog could not be loaded.
const LoadWarning = "Could not load search filters. Functionality may be limited."

// ErrNotLoaded is returned when the catalog is read before the loader ran.
var ErrNotLoaded = errors.New("filter catalog not loaded")

// Category is one named group of allowed tags.
type Category struct {
	Name string
	Tags []string
}

// AvailableFilters is the catalog: categories in the order the source
// document lists them, each with its ordered allowed tags. It encodes to and
// from the document's JSON object form.
type AvailableFilters []Category

// Contains reports whether tag is an exact, case-sensitive catalog value.
func (f AvailableFilters) Contains(tag string) bool {
	for _, c := range f {
		for _, t := range c.Tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}

// Categories returns category names in document order.
func (f AvailableFilters) Categories() []string {
	names := make([]string, 0, len(f))
	for _, c := range f {
		names = append(names, c.Name)
	}
	return names
}

// Len returns the total number of tags.
func (f AvailableFilters) Len() int {
	n := 0
	for _, c := range f {
		n += len(c.Tags)
	}
	return n
}

// JSON renders the catalog with two-space indentation, the form embedded
// into the interpretation prompt. Tags are written as-is, without HTML
// escaping, so the model sees the exact strings it has to copy.
func (f AvailableFilters) JSON() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// MarshalJSON writes the catalog as an object keyed by category name,
// keeping category order.
func (f AvailableFilters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		if err := writeRaw(&buf, c.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeRaw(&buf, tags); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a category → tags object, keeping key order. A
// repeated category replaces the earlier one in place.
func (f *AvailableFilters) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("catalog must be a JSON object")
	}

	out := AvailableFilters{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)

		var tags []string
		if err := dec.Decode(&tags); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		if tags == nil {
			tags = []string{}
		}
		if i, ok := index[name]; ok {
			out[i].Tags = tags
			continue
		}
		index[name] = len(out)
		out = append(out, Category{Name: name, Tags: tags})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func writeRaw(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Store is the session's catalog holder. It distinguishes "not yet loaded"
// from "loaded, possibly empty".
type Store struct {
	mu      sync.RWMutex
	filters AvailableFilters
	loaded  bool
	warning string
}

// NewStore returns an empty, not-yet-loaded store.
func NewStore() *Store {
	return &Store{}
}

// Filters returns the catalog and whether it has been loaded.
func (s *Store) Filters() (AvailableFilters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters, s.loaded
}

// Loaded reports whether a load attempt has completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Warning returns the non-fatal load warning, if any.
func (s *Store) Warning() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warning
}

// Set stores a successfully loaded catalog.
func (s *Store) Set(filters AvailableFilters) {
	if filters == nil {
		filters = AvailableFilters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = filters
	s.loaded = true
	s.warning = ""
}

// Degrade stores an empty catalog and records the user-visible warning.
func (s *Store) Degrade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = AvailableFilters{}
	s.loaded = true
	s.warning = LoadWarning
}
