package engine

import (
	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
)

// maxMembers bounds the registry size. Every vote walks the member list,
// a quorum group is a handful of parties, not an electorate.
const maxMembers = 255

// Member is one authorized party of a quorum group together with the
// capabilities it holds.
type Member struct {
	ID    quartz.Identity
	Perms quartz.PermissionSet
}

// Validate returns an error if the member data is incomplete.
func (m Member) Validate() error {
	if err := m.ID.Validate(); err != nil {
		return errors.Wrap(err, "id")
	}
	if err := m.Perms.Validate(); err != nil {
		return errors.Wrap(err, "permissions")
	}
	return nil
}

// Registry is the fixed set of authorized parties controlling one custody
// vault, together with the approval threshold. A registry is sealed at
// construction, members and threshold never change afterwards.
type Registry struct {
	Members   []Member
	Threshold uint32
}

// NewRegistry builds and seals a registry. The threshold must be at least
// one and must not exceed the member count, identities must be unique.
// Violations fail with ErrConfig since they cannot be fixed by retrying.
func NewRegistry(members []Member, threshold uint32) (*Registry, error) {
	r := &Registry{
		Members:   members,
		Threshold: threshold,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the registry invariants.
func (r *Registry) Validate() error {
	switch n := len(r.Members); {
	case n == 0:
		return errors.Wrap(errors.ErrConfig, "no members")
	case n > maxMembers:
		return errors.Wrap(errors.ErrConfig, "too many members")
	}
	if r.Threshold < 1 {
		return errors.Wrap(errors.ErrConfig, "threshold must be greater than 0")
	}
	if int(r.Threshold) > len(r.Members) {
		return errors.Wrap(errors.ErrConfig, "threshold must not exceed member count")
	}

	index := make(map[string]struct{}, len(r.Members))
	for _, m := range r.Members {
		// Bad member data is a construction time problem, surface it
		// under the configuration root regardless of the field that
		// failed.
		if err := m.Validate(); err != nil {
			return errors.Wrapf(errors.ErrConfig, "member: %s", err)
		}
		key := m.ID.String()
		if _, exists := index[key]; exists {
			return errors.Wrapf(errors.ErrConfig, "duplicate member %s", m.ID)
		}
		index[key] = struct{}{}
	}
	return nil
}

// Member returns the member with the given identity and an ok flag which
// is true only when the identity belongs to the registry.
func (r *Registry) Member(id quartz.Identity) (*Member, bool) {
	for i := range r.Members {
		if r.Members[i].ID.Equals(id) {
			return &r.Members[i], true
		}
	}
	return nil, false
}

// HasPermission is a pure lookup. An unknown identity returns false, not
// an error, so callers uniformly reject rather than special-case.
func (r *Registry) HasPermission(id quartz.Identity, perm quartz.Permission) bool {
	m, ok := r.Member(id)
	if !ok {
		return false
	}
	return m.Perms.Has(perm)
}

// MemberCount returns the number of members in the sealed set.
func (r *Registry) MemberCount() int {
	return len(r.Members)
}

// approversAmong counts members holding the approve capability. Used by
// the strict rejection policy to decide whether a threshold is still
// reachable.
func (r *Registry) approversAmong() int {
	var n int
	for _, m := range r.Members {
		if m.Perms.Has(quartz.PermApprove) {
			n++
		}
	}
	return n
}
