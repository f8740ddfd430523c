package compat

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Range is the version window a consumer accepts.
// MinMinor and MaxMinor are inclusive and only apply on the pre-stable track;
// a nil bound is unconstrained.
type Range struct {
	ExpectedMajor int  `json:"expected_major" yaml:"expected_major"`
	MinMinor      *int `json:"min_minor,omitempty" yaml:"min_minor,omitempty"`
	MaxMinor      *int `json:"max_minor,omitempty" yaml:"max_minor,omitempty"`
}

// Option narrows the minor range passed to IsCompatible.
type Option func(*Range)

// WithMinMinor sets the inclusive lower minor bound.
func WithMinMinor(minor int) Option {
	return func(r *Range) { r.MinMinor = &minor }
}

// WithMaxMinor sets the inclusive upper minor bound.
func WithMaxMinor(minor int) Option {
	return func(r *Range) { r.MaxMinor = &minor }
}

// WithMinorRange sets both minor bounds.
func WithMinorRange(minMinor, maxMinor int) Option {
	return func(r *Range) {
		r.MinMinor = &minMinor
		r.MaxMinor = &maxMinor
	}
}

// NewRange builds a Range for expectedMajor with the given bounds.
func NewRange(expectedMajor int, opts ...Option) Range {
	r := Range{ExpectedMajor: expectedMajor}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// IsCompatible reports whether a record produced under version may be
// interpreted by a consumer expecting expectedMajor.
//
// It never returns an error: an unparsable version is incompatible.
//
//	IsCompatible("0.2.0", 0, WithMinorRange(2, 2)) // true
//	IsCompatible("0.3.0", 0, WithMinorRange(1, 2)) // false
//	IsCompatible("1.5.0", 1)                       // true
func IsCompatible(version string, expectedMajor int, opts ...Option) bool {
	return NewRange(expectedMajor, opts...).Admits(version)
}

// Admits applies the gate to version.
func (r Range) Admits(version string) bool {
	v, err := ParseVersion(version)
	if err != nil {
		return false
	}
	if v.Major != r.ExpectedMajor {
		return false
	}
	if r.ExpectedMajor != 0 {
		// stable track: minor/patch drift is additive
		return true
	}
	if r.MinMinor != nil && v.Minor < *r.MinMinor {
		return false
	}
	if r.MaxMinor != nil && v.Minor > *r.MaxMinor {
		return false
	}
	return true
}

// String renders the range for logs and reports, e.g. "0.[2..3]" or "1.x".
func (r Range) String() string {
	if r.ExpectedMajor != 0 || (r.MinMinor == nil && r.MaxMinor == nil) {
		return fmt.Sprintf("%d.x", r.ExpectedMajor)
	}
	lo, hi := "*", "*"
	if r.MinMinor != nil {
		lo = fmt.Sprint(*r.MinMinor)
	}
	if r.MaxMinor != nil {
		hi = fmt.Sprint(*r.MaxMinor)
	}
	return fmt.Sprintf("%d.[%s..%s]", r.ExpectedMajor, lo, hi)
}

// Satisfies checks version against a SemVer constraint expression such as
// "~0.2" or ">= 1.0, < 2.0". It is an alternative to Range for consumers that
// already speak constraint syntax. Unlike IsCompatible it reports parse
// failures as errors.
func Satisfies(version, constraint string) (bool, error) {
	if _, err := ParseVersion(version); err != nil {
		return false, err
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("compat: invalid constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrInvalidVersionFormat, version, err)
	}
	return c.Check(v), nil
}
