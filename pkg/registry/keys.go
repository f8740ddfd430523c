package registry

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// contextKeyRE matches plain context keys such as "now_ms".
	contextKeyRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	// traceKeyRE matches namespaced trace keys such as "harness.fail_closed".
	traceKeyRE = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)
)

// reservedNamespaces are the namespaces owned by ecosystem cores. They name
// owners, not domains.
var reservedNamespaces = []string{
	"adapter",
	"dmc",
	"eval",
	"harness",
	"integration",
	"mdm",
	"ops",
}

// ErrUnknownMode is returned by ParseMode for an unrecognised mode name.
var ErrUnknownMode = errors.New("unknown key mode")

// Mode selects which key grammar applies to a context map.
type Mode string

const (
	// ModeContext accepts plain keys only.
	ModeContext Mode = "context"
	// ModeTrace accepts namespaced keys only. This is the grammar of the
	// first-generation validator.
	ModeTrace Mode = "trace"
	// ModeBoth accepts either grammar in the same map.
	ModeBoth Mode = "both"
)

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeContext, ModeTrace, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, err := ParseMode(string(m))
	return err == nil
}

// IsValidContextKey reports whether key is a plain key: lowercase ASCII
// letters, digits and underscore, with no dot.
func IsValidContextKey(key string) bool {
	return contextKeyRE.MatchString(key)
}

// IsValidTraceKey reports whether key is a namespaced key: at least two
// dot-separated segments, each using the plain-key alphabet.
func IsValidTraceKey(key string) bool {
	return traceKeyRE.MatchString(key)
}

// IsValidKey dispatches on mode. An unknown mode accepts nothing.
func IsValidKey(key string, mode Mode) bool {
	switch mode {
	case ModeContext:
		return IsValidContextKey(key)
	case ModeTrace:
		return IsValidTraceKey(key)
	case ModeBoth:
		return IsValidContextKey(key) || IsValidTraceKey(key)
	default:
		return false
	}
}

// Namespace returns the leading segment of a dotted key, or "" if key has no dot.
func Namespace(key string) string {
	ns, _, found := strings.Cut(key, ".")
	if !found {
		return ""
	}
	return ns
}

// ReservedNamespaces returns the published reserved namespace set, sorted.
func ReservedNamespaces() []string {
	return slices.Clone(reservedNamespaces)
}

// IsReservedNamespace reports whether ns is owned by an ecosystem core.
func IsReservedNamespace(ns string) bool {
	_, found := slices.BinarySearch(reservedNamespaces, ns)
	return found
}
