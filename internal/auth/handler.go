package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proeftuin/agrigate/internal/platform/httpx"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Handler exposes login and token refresh as JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	issuer    *Issuer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, issuer *Issuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, issuer: issuer, validator: validator.New()}
}

// MountRoutes registers auth routes. All of them authenticate via the
// request body or the bearer token itself, so they live outside the
// access-token middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/jwt_token", h.login)
	r.Get("/auth/refresh_token", h.refresh)
	r.Delete("/auth/refresh_token", h.logout)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	identity, err := h.service.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	access, refresh, err := h.issuer.Issue(r.Context(), identity)
	if err != nil {
		h.logger.Error("issue token pair", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":       identity.UserID,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// refresh trades a valid refresh token for a new access token.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	access, err := h.issuer.Refresh(r.Context(), token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"access_token": access})
}

// logout revokes the presented refresh token.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.issuer.RevokeRefresh(r.Context(), token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
