// Package compat is the schema compatibility gate. Consumers run it against a
// record's schemaVersion before trusting the record's shape.
//
// Two stability tracks apply:
//   - 0.x (pre-stable): a minor bump may be breaking, so callers pin a minor range.
//   - 1.x and later (stable): minor and patch releases are additive, only the
//     major version has to match.
package compat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersionFormat is returned when a version string cannot be parsed.
var ErrInvalidVersionFormat = errors.New("invalid version format")

// Version is a parsed MAJOR.MINOR.PATCH triple.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Track identifies the stability policy a major version falls under.
type Track string

const (
	TrackPreStable Track = "PRE_STABLE"
	TrackStable    Track = "STABLE"
)

// String returns the version as MAJOR.MINOR.PATCH.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Track reports which stability policy governs v.
func (v Version) Track() Track {
	if v.Major == 0 {
		return TrackPreStable
	}
	return TrackStable
}

// ParseVersion splits version on "." into (major, minor, patch).
//
// At least two components are required and every component must be a
// non-empty run of ASCII digits. A missing patch defaults to 0. Components
// after the third are checked but otherwise ignored.
func ParseVersion(version string) (Version, error) {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersionFormat, version)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: component %d: %v", ErrInvalidVersionFormat, version, i, err)
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1]}
	if len(nums) > 2 {
		v.Patch = nums[2]
	}
	return v, nil
}

func parseComponent(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric %q", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("out of range %q", s)
	}
	return n, nil
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return compareInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return compareInt(v.Minor, other.Minor)
	}
	return compareInt(v.Patch, other.Patch)
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
