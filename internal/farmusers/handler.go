package farmusers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/platform/httpx"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Decider gates farm membership endpoints with the policy engine.
type Decider interface {
	Decide(ctx context.Context, identity authz.Identity, method string, resource authz.Resource) (authz.AccessDecision, error)
}

// Handler exposes farm membership management as JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	decider   Decider
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, decider Decider) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, decider: decider, validator: validator.New()}
}

// MountRoutes registers farm user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/farm_users/{farmID}", h.listMembers)
	r.Post("/farm_users/{farmID}", h.assign)
	r.Delete("/farm_users/{farmID}", h.removeAll)
	r.Get("/farm_users/{farmID}/users/{userID}", h.getMember)
	r.Put("/farm_users/{farmID}/users/{userID}", h.changeRole)
	r.Delete("/farm_users/{farmID}/users/{userID}", h.remove)
}

// MountUserRolesRoute registers the per-user role listing. It is mounted
// separately because it authenticates with a refresh token rather than an
// access token.
func (h *Handler) MountUserRolesRoute(r chi.Router) {
	r.Get("/farm_users/user_roles/{userID}", h.userRoles)
}

type memberJSON struct {
	UserID int64    `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Role   roleJSON `json:"role"`
}

type roleJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	_, farmID, ok := h.authorizeFarm(w, r)
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), authz.InFarm(farmID))
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	if len(members) == 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no farm user found")
		return
	}
	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, memberJSON{UserID: m.UserID, Email: m.Email, Role: roleJSON{ID: m.RoleID, Name: m.RoleName}})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	identity, farmID, ok := h.authorizeFarm(w, r)
	if !ok {
		return
	}
	var payload struct {
		UserID int64  `json:"user_id"`
		Email  string `json:"email"`
		Role   string `json:"role" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if payload.UserID == 0 && payload.Email == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id or email required")
		return
	}

	scope := authz.InFarm(farmID)
	targetID := payload.UserID
	if targetID == 0 {
		id, err := h.service.repo.UserIDByEmail(r.Context(), payload.Email)
		if err != nil {
			authz.RespondError(w, err)
			return
		}
		targetID = id
	}

	// Adding anyone but yourself requires holding farm_admin here, unless
	// you are the site administrator.
	if targetID != identity.UserID && !identity.IsAdmin {
		role, held, err := h.service.RoleInFarm(r.Context(), scope, identity.UserID)
		if err != nil {
			authz.RespondError(w, err)
			return
		}
		if !held || role.RoleName != authz.RoleFarmAdmin {
			authz.RespondError(w, shared.ErrForbidden)
			return
		}
	}

	id, err := h.service.Assign(r.Context(), identity, scope, targetID, payload.Role)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Created", "assignment_id": id})
}

func (h *Handler) removeAll(w http.ResponseWriter, r *http.Request) {
	identity, farmID, ok := h.authorizeFarm(w, r)
	if !ok {
		return
	}
	scope := authz.InFarm(farmID)
	if !identity.IsAdmin {
		role, held, err := h.service.RoleInFarm(r.Context(), scope, identity.UserID)
		if err != nil {
			authz.RespondError(w, err)
			return
		}
		if !held || role.RoleName != authz.RoleFarmAdmin {
			authz.RespondError(w, shared.ErrForbidden)
			return
		}
	}
	if err := h.service.RemoveAll(r.Context(), identity, scope); err != nil {
		authz.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		authz.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	farmID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}
	// A user may always check their own membership; everything else goes
	// through the engine.
	if identity.UserID != userID {
		if !h.decide(w, r, identity, authz.InFarm(farmID)) {
			return
		}
	}
	role, held, err := h.service.RoleInFarm(r.Context(), authz.InFarm(farmID), userID)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	if !held {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "the selected farm user does not exist")
		return
	}
	httpx.JSON(w, http.StatusOK, memberJSON{UserID: userID, Role: roleJSON{ID: role.RoleID, Name: role.RoleName}})
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		authz.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	farmID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}
	if !h.decide(w, r, identity, authz.InFarm(farmID)) {
		return
	}
	var payload struct {
		Role string `json:"role" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ChangeRole(r.Context(), identity, authz.InFarm(farmID), userID, payload.Role); err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Updated"})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		authz.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	farmID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}
	if !h.decide(w, r, identity, authz.InFarm(farmID)) {
		return
	}
	if err := h.service.Remove(r.Context(), identity, authz.InFarm(farmID), userID); err != nil {
		authz.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		authz.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if !identity.IsAdmin {
		authz.RespondError(w, shared.ErrForbidden)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	held, err := h.service.RolesForUser(r.Context(), userID)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	if len(held) == 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no role for user found")
		return
	}
	type userRoleJSON struct {
		Scope string `json:"farm_scope"`
		Role  string `json:"role"`
	}
	out := make([]userRoleJSON, 0, len(held))
	for _, fr := range held {
		out = append(out, userRoleJSON{Scope: fr.Scope.String(), Role: fr.RoleName})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// authorizeFarm extracts identity and farm id, then runs the engine for the
// farm_user resource with the request's method.
func (h *Handler) authorizeFarm(w http.ResponseWriter, r *http.Request) (authz.Identity, int64, bool) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		authz.RespondError(w, shared.ErrUnauthenticated)
		return authz.Identity{}, 0, false
	}
	farmID, err := strconv.ParseInt(chi.URLParam(r, "farmID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid farm id")
		return authz.Identity{}, 0, false
	}
	if !h.decide(w, r, identity, authz.InFarm(farmID)) {
		return authz.Identity{}, 0, false
	}
	return identity, farmID, true
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, identity authz.Identity, scope authz.Scope) bool {
	decision, err := h.decider.Decide(r.Context(), identity, r.Method, authz.Resource{
		Name:  string(authz.ResourceFarmUser),
		Scope: scope,
	})
	if err != nil {
		authz.RespondError(w, err)
		return false
	}
	if !decision.Valid {
		authz.RespondError(w, shared.ErrForbidden)
		return false
	}
	return true
}

func (h *Handler) memberParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	farmID, err := strconv.ParseInt(chi.URLParam(r, "farmID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid farm id")
		return 0, 0, false
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return 0, 0, false
	}
	return farmID, userID, true
}
