package users

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/platform/httpx"
	"github.com/proeftuin/agrigate/internal/shared"
)

// TokenIssuer mints the token pair handed out at registration.
type TokenIssuer interface {
	Issue(ctx context.Context, identity authz.Identity) (access, refresh string, err error)
}

// Handler exposes account management as JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    TokenIssuer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens TokenIssuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, tokens: tokens, validator: validator.New()}
}

// MountRoutes registers account routes. Registration is mounted separately
// because it must stay reachable without a token.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users", h.listUsers)
	r.Get("/users/{userID}", h.getUser)
	r.Put("/users/{userID}", h.updateUser)
	r.Delete("/users/{userID}", h.deleteUser)
}

// MountPublicRoutes registers the unauthenticated registration route.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/users/register", h.register)
}

type userJSON struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_date"`
}

func toJSON(u User) userJSON {
	return userJSON{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=8"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Register(r.Context(), payload.FirstName, payload.LastName, payload.Email, payload.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Fresh accounts hold no roles anywhere, so is_admin is false by
	// construction.
	access, refresh, err := h.tokens.Issue(r.Context(), authz.Identity{UserID: user.ID})
	if err != nil {
		h.logger.Error("issue tokens after registration", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message":       "Created",
		"user_id":       user.ID,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if !identity.IsAdmin {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	list, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userJSON, 0, len(list))
	for _, u := range list {
		out = append(out, toJSON(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJSON(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	var payload struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=8"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), id, payload.FirstName, payload.LastName, payload.Email, payload.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Updated", "user_id": id})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// selfOrAdmin allows the account owner and the site administrator through.
func (h *Handler) selfOrAdmin(w http.ResponseWriter, r *http.Request) (authz.Identity, int64, bool) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return authz.Identity{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return authz.Identity{}, 0, false
	}
	if !identity.IsAdmin && identity.UserID != id {
		httpx.RespondError(w, shared.ErrForbidden)
		return authz.Identity{}, 0, false
	}
	return identity, id, true
}
