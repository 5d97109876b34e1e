// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package schemadiff

import (
	"encoding/json"
	"sort"
)

// Guarantees are the declarative, non-structural promises a contract
// can carry alongside its schema.
type Guarantees struct {
	Freshness      *Freshness          `json:"freshness,omitempty"`
	Volume         *Volume             `json:"volume,omitempty"`
	NotNullColumns []string            `json:"not_null_columns,omitempty"`
	UniqueColumns  []string            `json:"unique_columns,omitempty"`
	AcceptedValues map[string][]string `json:"accepted_values,omitempty"`
}

// Freshness promises a maximum data lag.
type Freshness struct {
	MaxLagSeconds int64 `json:"max_lag_seconds"`
}

// Volume promises row-count bounds.
type Volume struct {
	MinRows *int64 `json:"min_rows,omitempty"`
	MaxRows *int64 `json:"max_rows,omitempty"`
}

// ParseGuarantees decodes a raw guarantees document. A nil or empty
// input yields nil.
func ParseGuarantees(raw []byte) (*Guarantees, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var g Guarantees
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, ErrInvalidSchema.New("guarantees are not valid JSON: %v", err)
	}
	return &g, nil
}

// GuaranteeSeverity distinguishes informational relaxations from
// warnings about tightened promises.
type GuaranteeSeverity string

const (
	SeverityInfo    GuaranteeSeverity = "info"
	SeverityWarning GuaranteeSeverity = "warning"
)

// GuaranteeChangeKind enumerates every guarantee-level change.
type GuaranteeChangeKind string

const (
	NotNullAdded            GuaranteeChangeKind = "not_null_added"
	NotNullRemoved          GuaranteeChangeKind = "not_null_removed"
	UniqueAdded             GuaranteeChangeKind = "unique_added"
	UniqueRemoved           GuaranteeChangeKind = "unique_removed"
	AcceptedValuesExpanded  GuaranteeChangeKind = "accepted_values_expanded"
	AcceptedValuesContracted GuaranteeChangeKind = "accepted_values_contracted"
	FreshnessTightened      GuaranteeChangeKind = "freshness_tightened"
	FreshnessRelaxed        GuaranteeChangeKind = "freshness_relaxed"
	VolumeTightened         GuaranteeChangeKind = "volume_tightened"
	VolumeRelaxed           GuaranteeChangeKind = "volume_relaxed"
)

// GuaranteeChange is one difference between two guarantee documents.
type GuaranteeChange struct {
	Kind     GuaranteeChangeKind `json:"kind"`
	Column   string              `json:"column,omitempty"`
	Old      interface{}         `json:"old,omitempty"`
	New      interface{}         `json:"new,omitempty"`
	Severity GuaranteeSeverity   `json:"severity"`
}

// GuaranteeMode controls how guarantee changes affect publishing.
type GuaranteeMode string

const (
	GuaranteeIgnore GuaranteeMode = "ignore"
	GuaranteeNotify GuaranteeMode = "notify"
	GuaranteeStrict GuaranteeMode = "strict"
)

// DiffGuarantees compares two guarantee documents. Nil inputs are
// treated as empty.
func DiffGuarantees(old, updated *Guarantees) []GuaranteeChange {
	if old == nil {
		old = &Guarantees{}
	}
	if updated == nil {
		updated = &Guarantees{}
	}
	var changes []GuaranteeChange

	changes = append(changes, diffColumnSet(old.NotNullColumns, updated.NotNullColumns, NotNullAdded, NotNullRemoved)...)
	changes = append(changes, diffColumnSet(old.UniqueColumns, updated.UniqueColumns, UniqueAdded, UniqueRemoved)...)

	cols := map[string]bool{}
	for c := range old.AcceptedValues {
		cols[c] = true
	}
	for c := range updated.AcceptedValues {
		cols[c] = true
	}
	for _, col := range sortedBoolKeys(cols) {
		oldVals := stringSet(old.AcceptedValues[col])
		newVals := stringSet(updated.AcceptedValues[col])
		_, oldHas := old.AcceptedValues[col]
		_, newHas := updated.AcceptedValues[col]
		switch {
		case !oldHas && newHas:
			changes = append(changes, GuaranteeChange{Kind: AcceptedValuesContracted, Column: col, New: updated.AcceptedValues[col], Severity: SeverityWarning})
		case oldHas && !newHas:
			changes = append(changes, GuaranteeChange{Kind: AcceptedValuesExpanded, Column: col, Old: old.AcceptedValues[col], Severity: SeverityInfo})
		default:
			var added, removed []string
			for v := range newVals {
				if !oldVals[v] {
					added = append(added, v)
				}
			}
			for v := range oldVals {
				if !newVals[v] {
					removed = append(removed, v)
				}
			}
			sort.Strings(added)
			sort.Strings(removed)
			if len(removed) > 0 {
				changes = append(changes, GuaranteeChange{Kind: AcceptedValuesContracted, Column: col, Old: removed, Severity: SeverityWarning})
			}
			if len(added) > 0 {
				changes = append(changes, GuaranteeChange{Kind: AcceptedValuesExpanded, Column: col, New: added, Severity: SeverityInfo})
			}
		}
	}

	changes = append(changes, diffFreshness(old.Freshness, updated.Freshness)...)
	changes = append(changes, diffVolume(old.Volume, updated.Volume)...)
	return changes
}

func diffColumnSet(old, updated []string, addedKind, removedKind GuaranteeChangeKind) []GuaranteeChange {
	oldSet := stringSet(old)
	newSet := stringSet(updated)
	var changes []GuaranteeChange
	for _, col := range sortedBoolKeys(newSet) {
		if !oldSet[col] {
			changes = append(changes, GuaranteeChange{Kind: addedKind, Column: col, Severity: SeverityWarning})
		}
	}
	for _, col := range sortedBoolKeys(oldSet) {
		if !newSet[col] {
			changes = append(changes, GuaranteeChange{Kind: removedKind, Column: col, Severity: SeverityInfo})
		}
	}
	return changes
}

func diffFreshness(old, updated *Freshness) []GuaranteeChange {
	switch {
	case old == nil && updated == nil:
		return nil
	case old == nil:
		return []GuaranteeChange{{Kind: FreshnessTightened, New: updated.MaxLagSeconds, Severity: SeverityWarning}}
	case updated == nil:
		return []GuaranteeChange{{Kind: FreshnessRelaxed, Old: old.MaxLagSeconds, Severity: SeverityInfo}}
	case updated.MaxLagSeconds < old.MaxLagSeconds:
		return []GuaranteeChange{{Kind: FreshnessTightened, Old: old.MaxLagSeconds, New: updated.MaxLagSeconds, Severity: SeverityWarning}}
	case updated.MaxLagSeconds > old.MaxLagSeconds:
		return []GuaranteeChange{{Kind: FreshnessRelaxed, Old: old.MaxLagSeconds, New: updated.MaxLagSeconds, Severity: SeverityInfo}}
	}
	return nil
}

func diffVolume(old, updated *Volume) []GuaranteeChange {
	oldMin, oldMax := volumeBounds(old)
	newMin, newMax := volumeBounds(updated)
	var changes []GuaranteeChange
	if cmpBound(newMin, oldMin) > 0 || cmpUpper(newMax, oldMax) < 0 {
		changes = append(changes, GuaranteeChange{Kind: VolumeTightened, Old: old, New: updated, Severity: SeverityWarning})
	} else if cmpBound(newMin, oldMin) < 0 || cmpUpper(newMax, oldMax) > 0 {
		changes = append(changes, GuaranteeChange{Kind: VolumeRelaxed, Old: old, New: updated, Severity: SeverityInfo})
	}
	return changes
}

func volumeBounds(v *Volume) (min, max *int64) {
	if v == nil {
		return nil, nil
	}
	return v.MinRows, v.MaxRows
}

// cmpBound compares lower bounds; nil means unbounded (loosest).
func cmpBound(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// cmpUpper compares upper bounds; nil means unbounded (largest).
func cmpUpper(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// BreakingGuarantees reports whether a guarantee change list is
// breaking under the given mode. Only strict mode treats warnings as
// breaking.
func BreakingGuarantees(mode GuaranteeMode, changes []GuaranteeChange) bool {
	if mode != GuaranteeStrict {
		return false
	}
	for _, c := range changes {
		if c.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

func stringSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
