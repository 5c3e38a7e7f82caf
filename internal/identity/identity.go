package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller has no usable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")
)

// Role is one of the closed set of roles handed out by the identity provider.
type Role string

const (
	RoleSubject  Role = "subject"
	RoleOwner    Role = "owner"
	RoleObserver Role = "observer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := grants[r]
	return ok
}

// Capability names one guarded operation.
type Capability string

const (
	CapMarkSelf      Capability = "mark-self"
	CapOverride      Capability = "override"
	CapIssueCode     Capability = "issue-code"
	CapViewCode      Capability = "view-code"
	CapViewRoster    Capability = "view-roster"
	CapViewAnalytics Capability = "view-analytics"
	CapViewHistory   Capability = "view-history"
	CapViewDisplay   Capability = "view-display"
)

// Scope limits which resources a granted capability reaches.
type Scope int

const (
	// ScopeOwn requires the actor to own the resource.
	ScopeOwn Scope = iota + 1
	// ScopeAny reaches every resource.
	ScopeAny
)

var grants = map[Role]map[Capability]Scope{
	RoleSubject: {
		CapMarkSelf:    ScopeAny,
		CapViewHistory: ScopeOwn,
		CapViewDisplay: ScopeAny,
	},
	RoleOwner: {
		CapOverride:      ScopeOwn,
		CapIssueCode:     ScopeOwn,
		CapViewCode:      ScopeOwn,
		CapViewRoster:    ScopeOwn,
		CapViewAnalytics: ScopeOwn,
		CapViewHistory:   ScopeOwn,
		CapViewDisplay:   ScopeAny,
	},
	RoleObserver: {
		CapViewCode:      ScopeAny,
		CapViewRoster:    ScopeAny,
		CapViewAnalytics: ScopeAny,
		CapViewHistory:   ScopeAny,
		CapViewDisplay:   ScopeAny,
	},
}

// Person is an already-authenticated identity.
type Person struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Role Role   `json:"role" yaml:"role"`
}

// Can reports whether p holds c for a resource owned by resourceOwner.
func (p Person) Can(c Capability, resourceOwner string) bool {
	return Authorize(p, c, resourceOwner) == nil
}

// Authorize is the single authorization check every guarded operation runs.
// resourceOwner is the id owning the target (slot owner, history subject or
// analytics scope); an empty owner only passes ScopeAny grants.
func Authorize(p Person, c Capability, resourceOwner string) error {
	if p.ID == "" {
		return ErrUnauthorized
	}
	caps, ok := grants[p.Role]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrUnauthorized, p.Role)
	}
	scope, ok := caps[c]
	if !ok {
		return fmt.Errorf("%w: role %s cannot %s", ErrForbidden, p.Role, c)
	}
	if scope == ScopeOwn && resourceOwner != p.ID {
		return fmt.Errorf("%w: %s is limited to own resources", ErrForbidden, c)
	}
	return nil
}

// AuthorizeAny passes when p may act on a resource with any of the given
// owners, e.g. a record owned both by its subject and by the slot owner.
func AuthorizeAny(p Person, c Capability, owners ...string) error {
	if len(owners) == 0 {
		return Authorize(p, c, "")
	}
	var err error
	for _, o := range owners {
		if err = Authorize(p, c, o); err == nil {
			return nil
		}
	}
	return err
}

// Authenticate checks only that p is a usable identity.
func Authenticate(p Person) error {
	if p.ID == "" {
		return ErrUnauthorized
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrUnauthorized, p.Role)
	}
	return nil
}
