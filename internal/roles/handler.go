package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/platform/httpx"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Handler exposes the permission catalog as JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Get("/roles/permissions", h.listRolePermissions)
	r.Post("/roles/permissions", h.createRoleWithPermissions)
	r.Get("/roles/permissions/{roleID}", h.getRolePermissions)
	r.Put("/roles/permissions/{roleID}", h.replaceRolePermissions)
	r.Delete("/roles/permissions/{roleID}", h.clearRolePermissions)
	r.Get("/roles/{roleID}", h.getRole)
	r.Delete("/roles/{roleID}", h.deleteRole)
}

// resourcePermissions is the wire shape shared with every calling service:
// one resource name plus the methods granted on it.
type resourcePermissions struct {
	Resource string   `json:"resource" validate:"required"`
	Methods  []string `json:"methods" validate:"required,min=1"`
}

type roleJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rolePermissionsJSON struct {
	ID          int64                 `json:"id"`
	Role        string                `json:"role"`
	Permissions []resourcePermissions `json:"permissions"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRoles(r.Context())
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	out := make([]roleJSON, 0, len(list))
	for _, role := range list {
		out = append(out, roleJSON{ID: role.ID, Name: role.Name})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
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
	role, err := h.service.CreateRole(r.Context(), actor, payload.Role, nil)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Created", "role_id": role.ID})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	id, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleJSON{ID: role.ID, Name: role.Name})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), actor, id); err != nil {
		authz.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRoles(r.Context())
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	out := make([]rolePermissionsJSON, 0, len(list))
	for _, role := range list {
		grants, err := h.service.Grants(r.Context(), role.ID)
		if err != nil {
			authz.RespondError(w, err)
			return
		}
		out = append(out, rolePermissionsJSON{ID: role.ID, Role: role.Name, Permissions: groupGrants(grants)})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createRoleWithPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var payload struct {
		Role        string                `json:"role" validate:"required"`
		Permissions []resourcePermissions `json:"permissions" validate:"required,dive"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grants, err := flattenPermissions(payload.Permissions)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), actor, payload.Role, grants)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Created", "role_id": role.ID})
}

func (h *Handler) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	grants, err := h.service.Grants(r.Context(), id)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rolePermissionsJSON{ID: role.ID, Role: role.Name, Permissions: groupGrants(grants)})
}

func (h *Handler) replaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		Permissions []resourcePermissions `json:"permissions" validate:"required,dive"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grants, err := flattenPermissions(payload.Permissions)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	created, err := h.service.ReplaceGrants(r.Context(), actor, id, grants)
	if err != nil {
		authz.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Updated", "created": created})
}

func (h *Handler) clearRolePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.ClearGrants(r.Context(), actor, id); err != nil {
		authz.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// flattenPermissions expands the wire shape into grant pairs, validating
// against the closed vocabularies.
func flattenPermissions(payload []resourcePermissions) ([]Grant, error) {
	var grants []Grant
	for _, rp := range payload {
		resource, err := authz.ParseResourceType(rp.Resource)
		if err != nil {
			return nil, err
		}
		for _, m := range rp.Methods {
			perm, err := authz.ParsePermissionType(m)
			if err != nil {
				return nil, err
			}
			grants = append(grants, Grant{Permission: perm, Resource: resource})
		}
	}
	return grants, nil
}

// groupGrants folds grant pairs back into the per-resource wire shape,
// keeping the repository's resource ordering.
func groupGrants(grants []Grant) []resourcePermissions {
	out := []resourcePermissions{}
	index := map[authz.ResourceType]int{}
	for _, g := range grants {
		i, ok := index[g.Resource]
		if !ok {
			out = append(out, resourcePermissions{Resource: string(g.Resource)})
			i = len(out) - 1
			index[g.Resource] = i
		}
		out[i].Methods = append(out[i].Methods, string(g.Permission))
	}
	return out
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (authz.Identity, bool) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		authz.RespondError(w, shared.ErrUnauthenticated)
		return authz.Identity{}, false
	}
	if !identity.IsAdmin {
		authz.RespondError(w, shared.ErrForbidden)
		return authz.Identity{}, false
	}
	return identity, true
}

func roleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "roleID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return 0, false
	}
	return id, true
}
