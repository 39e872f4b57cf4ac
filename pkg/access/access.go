// Package access declares what a route requires of its caller. Each route
// carries a Policy that is checked once before its handler runs; per-record
// ownership rules live with the records themselves.
package access

import (
	"strings"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/user"
)

// Capability is something a caller must have.
type Capability uint8

const (
	Authenticated Capability = 1 << iota
	Admin
)

func (c Capability) String() string {
	var parts []string
	if c&Authenticated != 0 {
		parts = append(parts, "authenticated")
	}
	if c&Admin != 0 {
		parts = append(parts, "admin")
	}
	if len(parts) == 0 {
		return "public"
	}
	return strings.Join(parts, "+")
}

// Policy is a set of required capabilities.
type Policy struct {
	caps Capability
}

var (
	Public    = Policy{}
	Member    = Require(Authenticated)
	AdminOnly = Require(Authenticated, Admin)
)

// Require builds a policy from capabilities. Admin implies Authenticated.
func Require(caps ...Capability) Policy {
	var p Policy
	for _, c := range caps {
		p.caps |= c
	}
	if p.caps&Admin != 0 {
		p.caps |= Authenticated
	}
	return p
}

// Needs reports whether the policy requires c.
func (p Policy) Needs(c Capability) bool { return p.caps&c == c }

// NeedsIdentity reports whether a caller must be authenticated.
func (p Policy) NeedsIdentity() bool { return p.Needs(Authenticated) }

func (p Policy) String() string { return p.caps.String() }

// Check evaluates the policy against the resolved caller, which is nil for
// anonymous requests.
func (p Policy) Check(identity *user.User) error {
	if p.Needs(Authenticated) && identity == nil {
		return apperr.Unauthorized("authentication required")
	}
	if p.Needs(Admin) && !identity.IsAdmin() {
		return apperr.Forbidden("admin access required")
	}
	return nil
}
