// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

// Package version models the deployed application's release identifier and
// the single persisted record of which release is currently live.
//
// A Version is a strict major.minor.patch triple. Parsing is deliberately
// narrow: release tags carry a leading "v" that callers must strip before
// calling Parse, and pre-release or build suffixes are rejected.
//
// Ordering compares each component as an integer, so 1.10.0 sorts after 1.9.0.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Comparison results returned by Compare.
const (
	Less    = -1
	Equal   = 0
	Greater = 1
)

var (
	// ErrInvalidFormat is returned when a string is not three dot-separated
	// non-negative integers.
	ErrInvalidFormat = errors.New("invalid version format")

	// ErrUnknown is returned by a Store that holds no version record.
	ErrUnknown = errors.New("current version unknown")
)

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// Version is a semantic version triple.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Parse converts "1.2.3" into a Version.
func Parse(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	parts := [3]int{}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			// Only reachable on integer overflow.
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
		}
		parts[i] = n
	}

	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// StripPrefix removes a single leading "v" or "V" from a tag name.
func StripPrefix(tag string) string {
	if strings.HasPrefix(tag, "v") || strings.HasPrefix(tag, "V") {
		return tag[1:]
	}
	return tag
}

// String returns the dotted form, e.g. "1.2.3".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Tag returns the release tag name for the version, e.g. "v1.2.3".
func (v Version) Tag() string {
	return "v" + v.String()
}

// Compare returns Less, Equal or Greater comparing a to b.
func Compare(a, b Version) int {
	if c := compareInt(a.Major, b.Major); c != Equal {
		return c
	}
	if c := compareInt(a.Minor, b.Minor); c != Equal {
		return c
	}
	return compareInt(a.Patch, b.Patch)
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return Compare(v, other) == Less
}

// Equal reports whether v and other are the same release.
func (v Version) Equal(other Version) bool {
	return Compare(v, other) == Equal
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}
