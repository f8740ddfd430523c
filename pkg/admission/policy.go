// Package admission decides whether a consumer accepts a trace record: the
// record's schema version must pass the compatibility gate, and its context
// keys are checked against the key registry under a configurable policy.
package admission

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/decision-schema/pkg/compat"
	"github.com/Mindburn-Labs/decision-schema/pkg/registry"
	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

// ErrInvalidPolicy is returned by New for a policy it cannot enforce.
var ErrInvalidPolicy = errors.New("invalid admission policy")

// KeyIssueAction is what a gate does with a record whose context keys have
// validation issues.
type KeyIssueAction string

const (
	OnKeyIssuesWarn       KeyIssueAction = "warn"
	OnKeyIssuesReject     KeyIssueAction = "reject"
	OnKeyIssuesQuarantine KeyIssueAction = "quarantine"
)

// ParseKeyIssueAction parses "warn", "reject" or "quarantine".
func ParseKeyIssueAction(s string) (KeyIssueAction, error) {
	a := KeyIssueAction(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: on-key-issues %q", ErrInvalidPolicy, s)
	}
	return a, nil
}

func (a KeyIssueAction) Valid() bool {
	switch a {
	case OnKeyIssuesWarn, OnKeyIssuesReject, OnKeyIssuesQuarantine:
		return true
	}
	return false
}

// Policy is a consumer's admission configuration.
type Policy struct {
	ExpectedMajor    int
	MinMinor         *int
	MaxMinor         *int
	Mode             registry.Mode
	StrictNamespaces []string
	OnKeyIssues      KeyIssueAction
}

// DefaultPolicy pins the current schema major and minor, validates keys in
// ModeBoth without strict namespaces, and only warns on key issues.
func DefaultPolicy() Policy {
	cur, err := compat.ParseVersion(version.Current())
	if err != nil {
		panic(fmt.Sprintf("admission: current schema version: %v", err))
	}
	lo, hi := cur.Minor, cur.Minor
	return Policy{
		ExpectedMajor: cur.Major,
		MinMinor:      &lo,
		MaxMinor:      &hi,
		Mode:          registry.ModeBoth,
		OnKeyIssues:   OnKeyIssuesWarn,
	}
}

// Range returns the compatibility range the policy admits.
func (p Policy) Range() compat.Range {
	var opts []compat.Option
	if p.MinMinor != nil {
		opts = append(opts, compat.WithMinMinor(*p.MinMinor))
	}
	if p.MaxMinor != nil {
		opts = append(opts, compat.WithMaxMinor(*p.MaxMinor))
	}
	return compat.NewRange(p.ExpectedMajor, opts...)
}

// Validate reports whether p can be enforced.
func (p Policy) Validate() error {
	if p.ExpectedMajor < 0 {
		return fmt.Errorf("%w: expected major %d", ErrInvalidPolicy, p.ExpectedMajor)
	}
	if p.MinMinor != nil && p.MaxMinor != nil && *p.MinMinor > *p.MaxMinor {
		return fmt.Errorf("%w: min minor %d above max minor %d", ErrInvalidPolicy, *p.MinMinor, *p.MaxMinor)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidPolicy, registry.ErrUnknownMode, p.Mode)
	}
	if !p.OnKeyIssues.Valid() {
		return fmt.Errorf("%w: on-key-issues %q", ErrInvalidPolicy, p.OnKeyIssues)
	}
	for _, ns := range p.StrictNamespaces {
		if !registry.IsValidContextKey(ns) {
			return fmt.Errorf("%w: strict namespace %q", ErrInvalidPolicy, ns)
		}
	}
	return nil
}
