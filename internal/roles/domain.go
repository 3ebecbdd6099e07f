package roles

import "github.com/proeftuin/agrigate/internal/authz"

// Role represents a named bundle of permission grants.
type Role struct {
	ID   int64
	Name string
}

// Grant is one (permission, resource) pair carried by a role. A role's
// effective permissions are the union of its grants.
type Grant struct {
	Permission authz.PermissionType
	Resource   authz.ResourceType
}

// GrantSet deduplicates grants for set comparison.
func GrantSet(grants []Grant) map[Grant]struct{} {
	set := make(map[Grant]struct{}, len(grants))
	for _, g := range grants {
		set[g] = struct{}{}
	}
	return set
}

// SameGrants reports whether two grant lists describe the same set.
func SameGrants(a, b []Grant) bool {
	as, bs := GrantSet(a), GrantSet(b)
	if len(as) != len(bs) {
		return false
	}
	for g := range as {
		if _, ok := bs[g]; !ok {
			return false
		}
	}
	return true
}
