// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package registry holds the contract-registry domain model: teams,
// users, assets, dependencies, contracts, registrations, proposals,
// acknowledgments, API keys, and the audit trail, together with the
// storage interfaces the database layer implements.
package registry

import (
	"regexp"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// Error is the default error class for the registry package.
	Error = errs.Class("registry")
	// ErrNotFound is returned when an addressed entity is missing or
	// soft-deleted.
	ErrNotFound = errs.Class("not found")
	// ErrConflict is returned on duplicate creation attempts.
	ErrConflict = errs.Class("already exists")
	// ErrValidation is returned on malformed input.
	ErrValidation = errs.Class("validation")
	// ErrForbidden is returned on scope or ownership mismatches.
	ErrForbidden = errs.Class("forbidden")
)

var fqnSegment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateFQN checks that a fully qualified name has at least two
// dot-separated identifier segments.
func ValidateFQN(fqn string) error {
	segments := strings.Split(fqn, ".")
	if len(segments) < 2 {
		return ErrValidation.New("fqn %q must have at least two dot-separated segments", fqn)
	}
	for _, seg := range segments {
		if !fqnSegment.MatchString(seg) {
			return ErrValidation.New("fqn segment %q is not a valid identifier", seg)
		}
	}
	return nil
}
