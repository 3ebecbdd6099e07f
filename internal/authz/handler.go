package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proeftuin/agrigate/internal/platform/httpx"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Decider is the engine contract the handler depends on.
type Decider interface {
	Decide(ctx context.Context, identity Identity, method string, resource Resource) (AccessDecision, error)
}

// DecisionObserver counts decision outcomes for metrics.
type DecisionObserver interface {
	ObserveDecision(outcome string)
}

// Handler exposes the decision engine to calling services.
type Handler struct {
	logger    *slog.Logger
	decider   Decider
	observer  DecisionObserver
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, decider Decider, observer DecisionObserver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, decider: decider, observer: observer, validator: validator.New()}
}

// MountRoutes registers the verification route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/access_verification", h.verifyAccess)
}

// verificationRequest is the wire contract shared verbatim by every calling
// service.
type verificationRequest struct {
	Method   string `json:"method" validate:"required"`
	Resource struct {
		Name string `json:"name" validate:"required"`
		Meta struct {
			FarmID int64 `json:"farm_id"`
		} `json:"meta"`
	} `json:"resource" validate:"required"`
}

func (h *Handler) verifyAccess(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	var payload verificationRequest
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	scope := Global()
	if payload.Resource.Meta.FarmID != 0 {
		scope = InFarm(payload.Resource.Meta.FarmID)
	}

	decision, err := h.decider.Decide(r.Context(), identity, payload.Method, Resource{
		Name:  payload.Resource.Name,
		Scope: scope,
	})
	if err != nil {
		h.observe("error")
		RespondError(w, err)
		return
	}

	if decision.Valid {
		h.observe("allow")
	} else {
		h.observe("deny")
	}
	h.logger.Debug("access decision",
		slog.Int64("user_id", identity.UserID),
		slog.String("method", payload.Method),
		slog.String("resource", payload.Resource.Name),
		slog.Bool("valid", decision.Valid),
	)
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) observe(outcome string) {
	if h.observer != nil {
		h.observer.ObserveDecision(outcome)
	}
}
