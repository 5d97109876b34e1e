// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package schemadiff

// ChangeType is the coarse severity of a change list.
type ChangeType string

const (
	Patch ChangeType = "patch"
	Minor ChangeType = "minor"
	Major ChangeType = "major"
)

// Mode is the direction in which a change must remain readable.
type Mode string

const (
	Backward Mode = "backward"
	Forward  Mode = "forward"
	Full     Mode = "full"
	None     Mode = "none"
)

// ValidMode reports whether m is a known compatibility mode.
func ValidMode(m Mode) bool {
	switch m {
	case Backward, Forward, Full, None:
		return true
	}
	return false
}

var majorKinds = map[ChangeKind]bool{
	PropertyRemoved:     true,
	RequiredAdded:       true,
	TypeChanged:         true,
	TypeNarrowed:        true,
	EnumValuesRemoved:   true,
	ConstraintTightened: true,
	NullableRemoved:     true,
}

var minorKinds = map[ChangeKind]bool{
	PropertyAdded:     true,
	RequiredRemoved:   true,
	TypeWidened:       true,
	EnumValuesAdded:   true,
	ConstraintRelaxed: true,
	NullableAdded:     true,
}

// TypeOf derives the coarse change type from the strongest kind in the
// change list. An empty list is a patch.
func TypeOf(changes []Change) ChangeType {
	result := Patch
	for _, c := range changes {
		if majorKinds[c.Kind] {
			return Major
		}
		if minorKinds[c.Kind] {
			result = Minor
		}
	}
	return result
}

var backwardBreaking = map[ChangeKind]bool{
	PropertyRemoved:     true,
	RequiredAdded:       true,
	TypeChanged:         true,
	TypeNarrowed:        true,
	EnumValuesRemoved:   true,
	ConstraintTightened: true,
}

var forwardBreaking = map[ChangeKind]bool{
	PropertyAdded:     true,
	RequiredRemoved:   true,
	TypeWidened:       true,
	EnumValuesAdded:   true,
	ConstraintRelaxed: true,
}

// Classify applies a compatibility mode to a change list and returns
// whether the new schema is compatible, along with the subset of
// changes that break the mode.
func Classify(mode Mode, changes []Change) (compatible bool, breaking []Change) {
	if mode == None {
		return true, nil
	}
	for _, c := range changes {
		breaks := false
		switch mode {
		case Backward:
			breaks = backwardBreaking[c.Kind]
		case Forward:
			breaks = forwardBreaking[c.Kind]
		case Full:
			breaks = backwardBreaking[c.Kind] || forwardBreaking[c.Kind]
		}
		if breaks {
			breaking = append(breaking, c)
		}
	}
	return len(breaking) == 0, breaking
}
