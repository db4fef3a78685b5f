package quartz

import (
	"strings"

	"github.com/quartzvault/quartz/errors"
)

// Permission is a single capability a member of a quorum group may hold.
// The set of capabilities is fixed and exhaustively enumerated below, there
// is no way to mint new ones at runtime.
type Permission uint8

const (
	// PermPropose allows a member to create new proposals.
	PermPropose Permission = 1 << iota
	// PermApprove allows a member to cast votes. The same capability
	// governs both approving and rejecting, a rejection is a withheld
	// approval and not a separate power.
	PermApprove
	// PermExecute allows a member to trigger execution of an approved
	// proposal.
	PermExecute
)

// allPermissions is the mask of every declared capability.
const allPermissions = PermPropose | PermApprove | PermExecute

func (p Permission) String() string {
	switch p {
	case PermPropose:
		return "propose"
	case PermApprove:
		return "approve"
	case PermExecute:
		return "execute"
	}
	return "invalid"
}

// Validate returns an error unless this is exactly one declared capability.
func (p Permission) Validate() error {
	switch p {
	case PermPropose, PermApprove, PermExecute:
		return nil
	}
	return errors.ErrInput.Newf("permission: %d", p)
}

// PermissionSet is an immutable set of member capabilities. The bit
// encoding is an internal detail, membership is tested with Has and sets
// are built with NewPermissionSet.
type PermissionSet uint8

// NewPermissionSet returns the set holding exactly the given capabilities.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s |= PermissionSet(p)
	}
	return s
}

// Has returns true if the given capability belongs to this set.
func (s PermissionSet) Has(p Permission) bool {
	return s&PermissionSet(p) != 0
}

// Validate returns an error if the set is empty or holds undeclared bits.
func (s PermissionSet) Validate() error {
	if s == 0 {
		return errors.ErrEmpty.New("permission set")
	}
	if s&^PermissionSet(allPermissions) != 0 {
		return errors.ErrInput.Newf("undeclared permission bits: %b", s)
	}
	return nil
}

func (s PermissionSet) String() string {
	if s == 0 {
		return "(none)"
	}
	var names []string
	for _, p := range []Permission{PermPropose, PermApprove, PermExecute} {
		if s.Has(p) {
			names = append(names, p.String())
		}
	}
	return strings.Join(names, ",")
}
