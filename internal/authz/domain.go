package authz

import (
	"errors"
	"fmt"
	"net/http"
)

// PermissionType is the operation class derived from the HTTP method.
type PermissionType string

const (
	PermissionCreate PermissionType = "create"
	PermissionRead   PermissionType = "read"
	PermissionUpdate PermissionType = "update"
	PermissionDelete PermissionType = "delete"
)

// ResourceType is the closed category of an object under protection.
type ResourceType string

const (
	ResourceFarm        ResourceType = "farm"
	ResourceField       ResourceType = "field"
	ResourceCropField   ResourceType = "crop_field"
	ResourceDatamap     ResourceType = "datamap"
	ResourceEquipment   ResourceType = "equipment"
	ResourceObservation ResourceType = "observation"
	ResourceFarmUser    ResourceType = "farm_user"
	ResourceOther       ResourceType = "other"
)

// Builtin role names shared with the seed catalog. The generic user role is
// the fallback evaluated when no assignment exists for a farm.
const (
	RoleSysAdmin    = "admin"
	RoleFarmAdmin   = "farm_admin"
	RoleFarmer      = "farmer"
	RoleResearcher  = "researcher"
	RoleGenericUser = "user"
)

// ResourceTypes lists the full vocabulary in declaration order.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceFarm,
		ResourceField,
		ResourceCropField,
		ResourceDatamap,
		ResourceEquipment,
		ResourceObservation,
		ResourceFarmUser,
		ResourceOther,
	}
}

// PermissionTypes lists the permission vocabulary.
func PermissionTypes() []PermissionType {
	return []PermissionType{PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete}
}

// UnknownResourceTypeError reports a resource name outside the closed
// vocabulary. It carries the valid names for caller diagnostics.
type UnknownResourceTypeError struct {
	Name  string
	Valid []ResourceType
}

func (e *UnknownResourceTypeError) Error() string {
	return fmt.Sprintf("authz: resource type %q is not found, available types: %v", e.Name, e.Valid)
}

// ErrUnmappedMethod indicates a method outside the fixed method table.
// It marks a caller programming error, never a policy denial.
var ErrUnmappedMethod = errors.New("authz: method has no permission mapping")

// ParseResourceType converts a wire name into a ResourceType. The vocabulary
// is closed; unrecognized names fail, they never extend it.
func ParseResourceType(name string) (ResourceType, error) {
	for _, rt := range ResourceTypes() {
		if string(rt) == name {
			return rt, nil
		}
	}
	return "", &UnknownResourceTypeError{Name: name, Valid: ResourceTypes()}
}

// ParsePermissionType converts a wire name into a PermissionType.
func ParsePermissionType(name string) (PermissionType, error) {
	for _, pt := range PermissionTypes() {
		if string(pt) == name {
			return pt, nil
		}
	}
	return "", fmt.Errorf("authz: unknown permission type %q", name)
}

// PermissionForMethod normalizes an HTTP method to a PermissionType via the
// fixed table shared by every calling service.
func PermissionForMethod(method string) (PermissionType, error) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return PermissionRead, nil
	case http.MethodPost:
		return PermissionCreate, nil
	case http.MethodPut, http.MethodPatch:
		return PermissionUpdate, nil
	case http.MethodDelete:
		return PermissionDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnmappedMethod, method)
	}
}

// Scope is either a concrete farm or the reserved site-wide scope. The zero
// value is the global scope, so assignments default to site-wide only when
// constructed explicitly via Global.
type Scope struct {
	farmID int64
}

// Global returns the reserved site-wide scope.
func Global() Scope {
	return Scope{}
}

// InFarm returns a scope bound to a concrete farm.
func InFarm(farmID int64) Scope {
	return Scope{farmID: farmID}
}

// IsGlobal reports whether the scope is the site-wide sentinel.
func (s Scope) IsGlobal() bool {
	return s.farmID == 0
}

// FarmID returns the concrete farm id and whether one is set.
func (s Scope) FarmID() (int64, bool) {
	if s.farmID == 0 {
		return 0, false
	}
	return s.farmID, true
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("farm:%d", s.farmID)
}

// Identity is the already-authenticated caller. The engine trusts IsAdmin as
// derived by the token issuer from a global-scope admin assignment.
type Identity struct {
	UserID  int64 `json:"user_id"`
	IsAdmin bool  `json:"is_admin"`
}

// Resource describes the target of a decision request. Scope is global when
// the request is identity-wide rather than about a specific farm.
type Resource struct {
	Name  string
	Scope Scope
}

// AccessStatus is a visibility tier on read decisions.
type AccessStatus string

const (
	AccessPublic  AccessStatus = "public"
	AccessPrivate AccessStatus = "private"
)

// AccessGrant is one visibility tier. Private grants carry the farms the
// caller may see; public grants carry none.
type AccessGrant struct {
	Status  AccessStatus `json:"status"`
	FarmIDs []int64      `json:"farm_id,omitempty"`
}

// AccessDecision is the engine output. It is recomputed on every call and
// never persisted. A false Valid is an ordinary denial, not an error.
type AccessDecision struct {
	Valid   bool          `json:"valid"`
	Allowed []AccessGrant `json:"allowed_access"`
	IsAdmin bool          `json:"is_admin"`
	UserID  int64         `json:"user_id"`
}
