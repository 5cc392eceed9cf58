package authz

import "errors"

// ErrNoScopedRole indicates a user holds no role assignment in the requested
// course scope. Callers treat it as "no scoped override, defer to the basic
// role", never as a hard denial.
var ErrNoScopedRole = errors.New("authz: no scoped role assignment")

// ErrPolicyNotRegistered indicates a route declared a policy kind that was
// never registered. This is a deployment misconfiguration, surfaced as a
// server error rather than a denial.
var ErrPolicyNotRegistered = errors.New("authz: policy not registered")

// Role is an entry of the closed role catalogue.
type Role struct {
	ID   int64
	Name string
}

// Grant ties an action to a role. At most one grant exists per
// (role, action) pair.
type Grant struct {
	RoleID int64
	Action Action
}

// RoleGrants pairs a role with every action granted to it.
type RoleGrants struct {
	Role    Role
	Actions []Action
}

// ScopedRole is a user's role assignment within one course scope, carried
// together with the role's action set. At most one assignment exists per
// (user, course) pair. Projects inherit their owning course's assignments.
type ScopedRole struct {
	UserID   int64
	CourseID int64
	Role     Role
	Actions  []Action
}

// RoleInformation aggregates everything session-lifetime checks need: the
// basic role, the admin flag and the union of action sets across the basic
// role and every scoped assignment. It is cached into the session snapshot
// at login.
type RoleInformation struct {
	RoleID  int64
	IsAdmin bool
	Actions []Action
}
