// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package versioning parses, compares, and bumps contract versions.
package versioning

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/zeebo/errs"

	"tessera.io/tessera/tessera/schemadiff"
)

// ErrInvalidVersion is returned when a version string fails strict parsing.
var ErrInvalidVersion = errs.Class("invalid version")

// Initial is the version assigned to an asset's first contract.
const Initial = "1.0.0"

// Version is a parsed MAJOR.MINOR.PATCH[-prerelease][+build] version.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
	Build      string
}

func (v Version) String() string {
	out := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		out += "-" + v.Prerelease
	}
	if v.Build != "" {
		out += "+" + v.Build
	}
	return out
}

// Base returns the version with prerelease and build metadata dropped.
func (v Version) Base() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// Parse strictly parses a semantic version. Partial forms like "1.2"
// are rejected.
func Parse(s string) (Version, error) {
	parsed, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, ErrInvalidVersion.New("%q: %v", s, err)
	}
	return Version{
		Major:      parsed.Major(),
		Minor:      parsed.Minor(),
		Patch:      parsed.Patch(),
		Prerelease: parsed.Prerelease(),
		Build:      parsed.Metadata(),
	}, nil
}

// ParseLenient parses a version, falling back to 1.0.0 for legacy rows
// that predate strict validation.
func ParseLenient(s string) Version {
	v, err := Parse(s)
	if err != nil {
		return Version{Major: 1}
	}
	return v
}

// IsPrerelease reports whether s carries a prerelease tag.
func IsPrerelease(s string) bool {
	return ParseLenient(s).Prerelease != ""
}

// IsGraduation reports whether the transition from to next drops a
// prerelease tag while keeping the same base version
// (X.Y.Z-rc.1 -> X.Y.Z). Graduations are compatible by definition.
func IsGraduation(from, to string) bool {
	a := ParseLenient(from)
	b := ParseLenient(to)
	return a.Prerelease != "" && b.Prerelease == "" && a.Base() == b.Base()
}

// Bump increments v by the given change type and clears any prerelease
// or build metadata.
func Bump(v Version, kind schemadiff.ChangeType) Version {
	switch kind {
	case schemadiff.Major:
		return Version{Major: v.Major + 1}
	case schemadiff.Minor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Next computes the version for a new contract. With no current
// version the initial version is used. Incompatible changes force a
// major bump. Changes that are structurally major or minor but
// compatible under the asset's mode bump minor; anything else is a
// patch.
func Next(current string, compatible bool, changeType schemadiff.ChangeType) Version {
	if current == "" {
		return Version{Major: 1}
	}
	cur := ParseLenient(current)
	switch {
	case !compatible:
		return Bump(cur, schemadiff.Major)
	case changeType == schemadiff.Major || changeType == schemadiff.Minor:
		return Bump(cur, schemadiff.Minor)
	default:
		return Bump(cur, schemadiff.Patch)
	}
}

// Suggestion is a proposed next version with a human-readable reason.
type Suggestion struct {
	Version string `json:"version"`
	Reason  string `json:"reason"`
}

// Suggest computes the next version along with the reason shown in
// publish responses.
func Suggest(current string, compatible bool, changeType schemadiff.ChangeType) Suggestion {
	if current == "" {
		return Suggestion{Version: Initial, Reason: "First contract for this asset"}
	}
	next := Next(current, compatible, changeType)
	switch {
	case !compatible:
		return Suggestion{Version: next.String(), Reason: "Breaking change detected - major version bump required"}
	case changeType == schemadiff.Major || changeType == schemadiff.Minor:
		return Suggestion{Version: next.String(), Reason: "Backward-compatible change - minor version bump"}
	default:
		return Suggestion{Version: next.String(), Reason: "No structural change - patch version bump"}
	}
}

// Compare orders two version strings, parsing leniently.
func Compare(a, b string) int {
	av := ParseLenient(a)
	bv := ParseLenient(b)
	sa := semver.New(av.Major, av.Minor, av.Patch, av.Prerelease, av.Build)
	sb := semver.New(bv.Major, bv.Minor, bv.Patch, bv.Prerelease, bv.Build)
	return sa.Compare(sb)
}
