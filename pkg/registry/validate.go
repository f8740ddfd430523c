package registry

import (
	"cmp"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"gopkg.in/yaml.v3"
)

// Code identifies the kind of a validation issue. Codes are stable.
type Code string

const (
	// CodeNotMapping: the context value is present but is not a mapping.
	CodeNotMapping Code = "context_not_mapping"
	// CodeKeyNotString: a key is not a string.
	CodeKeyNotString Code = "key_not_str"
	// CodeInvalidKeyFormat: a key fails the grammar of the active mode.
	CodeInvalidKeyFormat Code = "invalid_key_format"
	// CodeUnregisteredKey: a well-formed key under a strict namespace is not registered.
	CodeUnregisteredKey Code = "unregistered_key"
	// CodeUnknownMode: the caller passed an undefined Mode.
	CodeUnknownMode Code = "unknown_mode"
)

// Issue is one validation finding.
type Issue struct {
	Code Code   `json:"code"`
	Key  string `json:"key,omitempty"`
}

// String renders the issue in wire form, e.g. "invalid_key_format:InvalidKey".
func (i Issue) String() string {
	switch i.Code {
	case CodeNotMapping, CodeKeyNotString:
		return string(i.Code)
	default:
		return string(i.Code) + ":" + i.Key
	}
}

// Strings renders issues in wire form.
func Strings(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}

// HasCode reports whether any issue carries code.
func HasCode(issues []Issue, code Code) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Code == code })
}

// Validate checks the keys of contextMap against the default registry.
// See (*Registry).Validate.
func Validate(contextMap any, mode Mode, strictNamespaces ...string) []Issue {
	return Default().Validate(contextMap, mode, strictNamespaces...)
}

// Validate checks the keys of contextMap and returns every problem found.
// An empty result means the map passed. It never panics.
//
// contextMap may be nil (passes), any Go map, or a *yaml.Node mapping. An
// absent map passes whatever the mode; otherwise an unknown mode yields a
// single unknown_mode issue. Go maps are visited in sorted key order; yaml
// mappings in document order, with alias keys resolved and merge keys (<<)
// replaced by the keys they merge in.
//
// For each key: a non-string key yields key_not_str; a key failing the mode's
// grammar yields invalid_key_format and skips the registry check; a dotted key
// whose namespace is in strictNamespaces must be registered or it yields
// unregistered_key.
func (r *Registry) Validate(contextMap any, mode Mode, strictNamespaces ...string) []Issue {
	if absent(contextMap) {
		return nil
	}
	if !mode.Valid() {
		return []Issue{{Code: CodeUnknownMode, Key: string(mode)}}
	}

	keys, ok := contextKeys(contextMap)
	if !ok {
		return []Issue{{Code: CodeNotMapping}}
	}

	var issues []Issue
	for _, k := range keys {
		if !k.isString {
			issues = append(issues, Issue{Code: CodeKeyNotString})
			continue
		}
		if !IsValidKey(k.name, mode) {
			issues = append(issues, Issue{Code: CodeInvalidKeyFormat, Key: k.name})
			continue
		}
		ns := Namespace(k.name)
		if ns != "" && slices.Contains(strictNamespaces, ns) && !r.Contains(k.name) {
			issues = append(issues, Issue{Code: CodeUnregisteredKey, Key: k.name})
		}
	}
	return issues
}

func absent(v any) bool {
	switch m := v.(type) {
	case nil:
		return true
	case *yaml.Node:
		if m == nil {
			return true
		}
		if m.Kind == yaml.DocumentNode {
			if len(m.Content) == 0 {
				return true
			}
			m = m.Content[0]
		}
		m = resolveAlias(m)
		return m.Kind == yaml.ScalarNode && m.ShortTag() == "!!null"
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Map && rv.IsNil()
}

type contextKey struct {
	name     string
	isString bool
}

// contextKeys lists the keys of a mapping in iteration order. ok is false when
// v is present but not a mapping.
func contextKeys(v any) (keys []contextKey, ok bool) {
	switch m := v.(type) {
	case nil:
		return nil, true
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(m)) {
			keys = append(keys, contextKey{name: k, isString: true})
		}
		return keys, true
	case *yaml.Node:
		return yamlKeys(m)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	if rv.IsNil() {
		return nil, true
	}

	type sortable struct {
		key  contextKey
		sort string
	}
	all := make([]sortable, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		if k.Kind() == reflect.Interface {
			k = k.Elem()
		}
		switch {
		case !k.IsValid():
			all = append(all, sortable{sort: "<nil>"})
		case k.Kind() == reflect.String:
			all = append(all, sortable{key: contextKey{name: k.String(), isString: true}, sort: k.String()})
		default:
			all = append(all, sortable{sort: fmt.Sprint(k.Interface())})
		}
	}
	slices.SortStableFunc(all, func(a, b sortable) int { return cmp.Compare(a.sort, b.sort) })
	for _, s := range all {
		keys = append(keys, s.key)
	}
	return keys, true
}

func yamlKeys(n *yaml.Node) ([]contextKey, bool) {
	if n == nil {
		return nil, true
	}
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil, true
		}
		n = n.Content[0]
	}
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.MappingNode:
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil, true
		}
		return nil, false
	default:
		return nil, false
	}

	var keys []contextKey
	collectYAMLKeys(n, &keys, map[string]bool{}, map[*yaml.Node]bool{})
	return keys, true
}

// collectYAMLKeys appends the keys of mapping m in document order. Merged
// mappings contribute keys not already present; a key written out after a
// merge that brought it in is listed once.
func collectYAMLKeys(m *yaml.Node, keys *[]contextKey, seen map[string]bool, visiting map[*yaml.Node]bool) {
	if visiting[m] {
		return
	}
	visiting[m] = true
	defer delete(visiting, m)

	for i := 0; i+1 < len(m.Content); i += 2 {
		k := resolveAlias(m.Content[i])
		if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
			for _, src := range mergeSources(m.Content[i+1]) {
				collectYAMLKeys(src, keys, seen, visiting)
			}
			continue
		}
		if k.Kind != yaml.ScalarNode || k.ShortTag() != "!!str" {
			*keys = append(*keys, contextKey{})
			continue
		}
		if seen[k.Value] {
			continue
		}
		seen[k.Value] = true
		*keys = append(*keys, contextKey{name: k.Value, isString: true})
	}
}

// mergeSources returns the mappings named by a merge value: a mapping, or a
// sequence of mappings, either possibly behind aliases.
func mergeSources(v *yaml.Node) []*yaml.Node {
	v = resolveAlias(v)
	switch v.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{v}
	case yaml.SequenceNode:
		out := make([]*yaml.Node, 0, len(v.Content))
		for _, item := range v.Content {
			if item = resolveAlias(item); item.Kind == yaml.MappingNode {
				out = append(out, item)
			}
		}
		return out
	}
	return nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
