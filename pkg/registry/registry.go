// Package registry is the source of truth for trace key naming.
//
// It holds the read-only table of registered namespaced keys and validates the
// keys of a record's context map. Format checking is always on; registry
// membership is only enforced for namespaces the caller lists as strict, so
// integrators can adopt registration one namespace at a time.
package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidEntry is returned when an entry breaks the registry invariant.
	ErrInvalidEntry = errors.New("invalid registry entry")
	// ErrDuplicateKey is returned when a table lists the same key twice.
	ErrDuplicateKey = errors.New("duplicate registry key")
)

//go:embed registry.yaml
var defaultTable []byte

// Entry describes one registered trace key.
type Entry struct {
	Key          string `yaml:"key" json:"key"`
	Owner        string `yaml:"owner" json:"owner"`
	IntroducedIn string `yaml:"introduced_in" json:"introduced_in"`
	Description  string `yaml:"description" json:"description"`
}

// Validate checks the entry invariant: namespaced key under a reserved
// namespace, non-empty metadata, SemVer introduced_in.
func (e Entry) Validate() error {
	if !IsValidTraceKey(e.Key) {
		return fmt.Errorf("%w: key %q does not match the namespaced grammar", ErrInvalidEntry, e.Key)
	}
	if ns := Namespace(e.Key); !IsReservedNamespace(ns) {
		return fmt.Errorf("%w: key %q uses unreserved namespace %q", ErrInvalidEntry, e.Key, ns)
	}
	if strings.TrimSpace(e.Owner) == "" {
		return fmt.Errorf("%w: key %q: owner is empty", ErrInvalidEntry, e.Key)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: key %q: description is empty", ErrInvalidEntry, e.Key)
	}
	if strings.TrimSpace(e.IntroducedIn) == "" {
		return fmt.Errorf("%w: key %q: introduced_in is empty", ErrInvalidEntry, e.Key)
	}
	if _, err := semver.StrictNewVersion(e.IntroducedIn); err != nil {
		return fmt.Errorf("%w: key %q: introduced_in %q: %v", ErrInvalidEntry, e.Key, e.IntroducedIn, err)
	}
	return nil
}

// Registry is an immutable table of registered keys. The zero value is an
// empty registry.
type Registry struct {
	entries map[string]Entry
	keys    []string
}

// New builds a registry from entries, validating each one.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]Entry, len(entries)),
		keys:    make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.entries[e.Key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, e.Key)
		}
		r.entries[e.Key] = e
		r.keys = append(r.keys, e.Key)
	}
	slices.Sort(r.keys)
	return r, nil
}

type table struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads a YAML registry table. Unknown fields are rejected.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var t table
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("registry: parse table: %w", err)
	}
	reg, err := New(t.Entries...)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return reg, nil
}

// LoadFile reads a YAML registry table from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Load(bytes.NewReader(data))
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Load(bytes.NewReader(defaultTable))
	if err != nil {
		// The table is compiled into the binary; a broken table is a build defect.
		panic(fmt.Sprintf("registry: embedded table: %v", err))
	}
	return r
})

// Default returns the process-wide registry built from the embedded table.
// It is loaded on first use and never modified.
func Default() *Registry {
	return defaultRegistry()
}

// Lookup returns the entry for key.
func (r *Registry) Lookup(key string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[key]
	return e, ok
}

// Contains reports whether key is registered.
func (r *Registry) Contains(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.keys)
}

// Entries returns all entries sorted by key.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.entries[k])
	}
	return out
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// ListRegisteredKeys returns the keys of the default registry, sorted.
func ListRegisteredKeys() []string {
	return Default().Keys()
}

// Lookup returns the default registry's entry for key.
func Lookup(key string) (Entry, bool) {
	return Default().Lookup(key)
}
