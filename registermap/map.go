package registermap

import (
	"errors"
	"fmt"
)

// ErrUnknownRegister is returned by Lookup when no descriptor is registered under the given name.
var ErrUnknownRegister = errors.New("unknown register")

// Map is the immutable, bootstrap-supplied descriptor table: name -> {address, scaling, word count,
// signed/unsigned, read/write, unit}. It is set once at bootstrap and never mutated for the lifetime of
// the process.
type Map struct {
	descriptors map[string]Descriptor
}

// New builds a Map from the given descriptors, keyed by their Name field.
func New(descriptors []Descriptor) (*Map, error) {
	m := &Map{
		descriptors: make(map[string]Descriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("register descriptor has no name: %+v", d)
		}
		if d.WordCount != 1 && d.WordCount != 2 {
			return nil, fmt.Errorf("register %q: unsupported word count %d", d.Name, d.WordCount)
		}
		m.descriptors[d.Name] = d
	}
	return m, nil
}

// Lookup returns the descriptor registered under the given name, or ErrUnknownRegister if no component
// has defined that register.
func (m *Map) Lookup(name string) (Descriptor, error) {
	d, ok := m.descriptors[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("lookup register %q: %w", name, ErrUnknownRegister)
	}
	return d, nil
}

// Len returns the number of registers known to the map.
func (m *Map) Len() int {
	return len(m.descriptors)
}

// All returns a copy of every descriptor in the map, primarily for diagnostics and cache population.
func (m *Map) All() []Descriptor {
	all := make([]Descriptor, 0, len(m.descriptors))
	for _, d := range m.descriptors {
		all = append(all, d)
	}
	return all
}
