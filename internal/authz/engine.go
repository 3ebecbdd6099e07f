package authz

import (
	"context"
)

// FarmRole is one role a user holds within a scope.
type FarmRole struct {
	Scope    Scope
	RoleID   int64
	RoleName string
}

// AssignmentSource reads the farm role assignment store.
type AssignmentSource interface {
	RolesForUser(ctx context.Context, userID int64) ([]FarmRole, error)
	RoleInFarm(ctx context.Context, scope Scope, userID int64) (FarmRole, bool, error)
	AnyAssignment(ctx context.Context, scope Scope) (bool, error)
}

// GrantSource reads the permission catalog.
type GrantSource interface {
	HasGrant(ctx context.Context, roleID int64, permission PermissionType, resource ResourceType) (bool, error)
}

// Engine computes access decisions from the catalog and assignment stores.
// It is stateless: every call reflects the latest committed store state.
type Engine struct {
	assignments AssignmentSource
	grants      GrantSource
}

// NewEngine constructs an Engine over the two stores.
func NewEngine(assignments AssignmentSource, grants GrantSource) *Engine {
	return &Engine{assignments: assignments, grants: grants}
}

// publicReadable lists the resource types a user without a grant may read at
// the public tier. farm_user is deliberately absent.
var publicReadable = map[ResourceType]bool{
	ResourceFarm:        true,
	ResourceField:       true,
	ResourceCropField:   true,
	ResourceDatamap:     true,
	ResourceEquipment:   true,
	ResourceObservation: true,
	ResourceOther:       true,
}

// Decide answers whether identity may perform method on resource. The only
// error cases are an unmapped method, an unknown resource type, and store
// read failures; a denial is returned as Valid=false with a nil error.
func (e *Engine) Decide(ctx context.Context, identity Identity, method string, resource Resource) (AccessDecision, error) {
	// Allowed starts as an empty list so denials and write grants serialize
	// as [] on the wire, never null.
	decision := AccessDecision{
		UserID:  identity.UserID,
		IsAdmin: identity.IsAdmin,
		Allowed: []AccessGrant{},
	}

	permission, err := PermissionForMethod(method)
	if err != nil {
		return AccessDecision{}, err
	}

	// Site administrators get both tiers on any resource name, recognized or
	// not. Calling services rely on admins never seeing an unknown-resource
	// failure, so the vocabulary check comes after this.
	if identity.IsAdmin {
		decision.Valid = true
		decision.Allowed = []AccessGrant{{Status: AccessPublic}, {Status: AccessPrivate}}
		return decision, nil
	}

	resourceType, err := ParseResourceType(resource.Name)
	if err != nil {
		return AccessDecision{}, err
	}

	if farmID, ok := resource.Scope.FarmID(); ok {
		return e.decideInFarm(ctx, decision, permission, resourceType, farmID)
	}
	return e.decideUnscoped(ctx, decision, permission, resourceType)
}

// decideUnscoped handles identity-wide requests carrying no farm scope.
func (e *Engine) decideUnscoped(ctx context.Context, decision AccessDecision, permission PermissionType, resource ResourceType) (AccessDecision, error) {
	held, err := e.assignments.RolesForUser(ctx, decision.UserID)
	if err != nil {
		return AccessDecision{}, err
	}

	if len(held) == 0 {
		return decideAsGenericUser(decision, permission, resource, genericCreate{farm: true, datamap: true}), nil
	}

	// Collect the farms in which some held role grants this operation. A
	// site-wide assignment counts toward validity but contributes no farm id.
	var farmIDs []int64
	granted := false
	for _, fr := range held {
		ok, err := e.grants.HasGrant(ctx, fr.RoleID, permission, resource)
		if err != nil {
			return AccessDecision{}, err
		}
		if !ok {
			continue
		}
		granted = true
		if id, concrete := fr.Scope.FarmID(); concrete {
			farmIDs = append(farmIDs, id)
		}
	}

	if !granted {
		return decision, nil
	}
	decision.Valid = true
	if permission == PermissionRead {
		decision.Allowed = []AccessGrant{
			{Status: AccessPrivate, FarmIDs: farmIDs},
			{Status: AccessPublic},
		}
	}
	return decision, nil
}

// decideInFarm handles requests about a resource inside a concrete farm.
func (e *Engine) decideInFarm(ctx context.Context, decision AccessDecision, permission PermissionType, resource ResourceType, farmID int64) (AccessDecision, error) {
	scope := InFarm(farmID)

	farmExists, err := e.assignments.AnyAssignment(ctx, scope)
	if err != nil {
		return AccessDecision{}, err
	}

	role := FarmRole{RoleName: RoleGenericUser}
	if farmExists {
		if fr, ok, err := e.assignments.RoleInFarm(ctx, scope, decision.UserID); err != nil {
			return AccessDecision{}, err
		} else if ok {
			role = fr
		}
	}

	if role.RoleName == RoleGenericUser {
		// The create branch is the bootstrap path: claiming the farm itself
		// or creating its first membership record, allowed only while the
		// farm has zero assignments.
		create := genericCreate{}
		if !farmExists {
			create.farm = true
			create.farmUser = true
		}
		return decideAsGenericUser(decision, permission, resource, create), nil
	}

	ok, err := e.grants.HasGrant(ctx, role.RoleID, permission, resource)
	if err != nil {
		return AccessDecision{}, err
	}
	if !ok {
		return decision, nil
	}
	decision.Valid = true
	if permission == PermissionRead {
		decision.Allowed = []AccessGrant{
			{Status: AccessPrivate, FarmIDs: []int64{farmID}},
			{Status: AccessPublic},
		}
	}
	return decision, nil
}

// genericCreate flags which resource types the generic-user branch may create.
type genericCreate struct {
	farm     bool
	datamap  bool
	farmUser bool
}

func (g genericCreate) allows(resource ResourceType) bool {
	switch resource {
	case ResourceFarm:
		return g.farm
	case ResourceDatamap:
		return g.datamap
	case ResourceFarmUser:
		return g.farmUser
	default:
		return false
	}
}

// decideAsGenericUser applies the rules for callers holding no role in the
// evaluated scope: public reads on everything except farm_user, a narrow
// create list, never update or delete.
func decideAsGenericUser(decision AccessDecision, permission PermissionType, resource ResourceType, create genericCreate) AccessDecision {
	switch permission {
	case PermissionRead:
		if publicReadable[resource] {
			decision.Valid = true
			decision.Allowed = []AccessGrant{{Status: AccessPublic}}
		}
	case PermissionCreate:
		decision.Valid = create.allows(resource)
	}
	return decision
}
