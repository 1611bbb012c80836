// Package rbac resolves the identity provider's raw role assertions into an
// effective role and a derived permission set, and gates page rendering on
// them.
package rbac

// Role is one of the application roles registered as Entra ID app roles.
// The names must match the app registration exactly; matching is
// case-sensitive.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleSuperuser Role = "Superuser"
	RoleUser      Role = "User"
)

// rolePriority orders roles from most to least privileged. EffectiveRole
// picks the first match from this list.
var rolePriority = []Role{RoleAdmin, RoleSuperuser, RoleUser}

// Permission is an atomic capability granted to roles via the static table.
type Permission string

const (
	PermViewAnalytics Permission = "view_analytics"
	PermViewSettings  Permission = "view_settings"
	PermEditSettings  Permission = "edit_settings"
	PermManageUsers   Permission = "manage_users"
)

// rolePermissions is the static role → permission table. Each tier is a
// superset of the tier below it; rbac tests assert that monotonicity.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermViewAnalytics,
	},
	RoleSuperuser: {
		PermViewAnalytics,
		PermViewSettings,
		PermEditSettings,
	},
	RoleAdmin: {
		PermViewAnalytics,
		PermViewSettings,
		PermEditSettings,
		PermManageUsers,
	},
}

// EffectiveRole maps the raw roles claim to the single highest-priority
// known role. Unrecognised strings are ignored rather than rejected; ok is
// false only when nothing matches.
func EffectiveRole(raw []string) (Role, bool) {
	assigned := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		assigned[r] = struct{}{}
	}
	for _, role := range rolePriority {
		if _, ok := assigned[string(role)]; ok {
			return role, true
		}
	}
	return "", false
}

// Permissions returns the permissions granted to a role. Unknown roles get
// nothing.
func Permissions(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasRole reports whether the effective role is one of the candidates.
func HasRole(raw []string, candidates ...Role) bool {
	effective, ok := EffectiveRole(raw)
	if !ok {
		return false
	}
	for _, candidate := range candidates {
		if effective == candidate {
			return true
		}
	}
	return false
}

// HasPermission reports whether the effective role grants the permission.
func HasPermission(raw []string, perm Permission) bool {
	effective, ok := EffectiveRole(raw)
	if !ok {
		return false
	}
	for _, granted := range rolePermissions[effective] {
		if granted == perm {
			return true
		}
	}
	return false
}
