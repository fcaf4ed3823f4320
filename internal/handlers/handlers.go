package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/cache"
	"orgkit-backend/internal/invite"
	"orgkit-backend/internal/middleware"
	"orgkit-backend/internal/models"
)

// Store is the persistence the HTTP layer needs beyond the invite flow.
type Store interface {
	invite.Store

	Ping(ctx context.Context) error

	UpsertUserFromIdentity(ctx context.Context, identity models.Identity) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id string, input models.UpdateProfileInput) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateOrganization(ctx context.Context, ownerID string, input models.CreateOrganizationInput) (*models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	ListUserOrganizations(ctx context.Context, userID string) ([]models.OrganizationWithRole, error)
	DeleteOrganization(ctx context.Context, id string) error
	GetMembership(ctx context.Context, orgID, userID string) (*models.Membership, error)

	CreateInviteLink(ctx context.Context, orgID, createdBy string, expiresAt time.Time) (*models.InviteLink, error)
	ListInviteLinks(ctx context.Context, orgID string) ([]models.InviteLink, error)
	DeleteInviteLink(ctx context.Context, orgID, id string) error
	CreateEmailInvite(ctx context.Context, orgID, invitedBy string, input models.CreateEmailInviteInput, expiresAt time.Time) (*models.EmailInvite, error)
	ListEmailInvites(ctx context.Context, orgID string) ([]models.EmailInvite, error)
	DeactivateEmailInvite(ctx context.Context, orgID, id string) error
}

// IdentityProvider completes OAuth and magic-link sign-in.
type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code string) (models.Identity, error)
	VerifyOTP(ctx context.Context, tokenHash, otpType string) (models.Identity, error)
}

type Options struct {
	SiteURL        string
	InviteLinkTTL  time.Duration
	EmailInviteTTL time.Duration
	CookieSecure   bool
}

type Deps struct {
	Store     Store
	Provider  IdentityProvider
	Sessions  *auth.Sessions
	Codec     *invite.Codec
	Invites   *invite.Service
	Publisher invite.Publisher
	Limiter   cache.Client
	Logger    *zap.Logger
	Options   Options
}

type Handler struct {
	store     Store
	provider  IdentityProvider
	sessions  *auth.Sessions
	codec     *invite.Codec
	invites   *invite.Service
	publisher invite.Publisher
	limiter   cache.Client
	auth      *auth.Handler
	logger    *zap.Logger
	opts      Options
}

func New(deps Deps) *Handler {
	return &Handler{
		store:     deps.Store,
		provider:  deps.Provider,
		sessions:  deps.Sessions,
		codec:     deps.Codec,
		invites:   deps.Invites,
		publisher: deps.Publisher,
		limiter:   deps.Limiter,
		auth:      auth.NewHandler(deps.Store, deps.Sessions, deps.Logger),
		logger:    deps.Logger,
		opts:      deps.Options,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	h.registerDocs(r)

	// Entry points that work with or without a session
	r.Group(func(r chi.Router) {
		r.Use(h.sessions.OptionalMiddleware)

		r.Group(func(r chi.Router) {
			h.limit(r, middleware.RateLimitAuthCallbacks)
			r.Get("/auth/callback", h.OAuthCallback)
			r.Get("/auth/confirm", h.ConfirmOTP)
		})

		r.Group(func(r chi.Router) {
			h.limit(r, middleware.RateLimitInviteVisits, middleware.RateLimitInviteToken)
			r.Get("/organizations/invite-link", h.VisitInviteLink)
			r.Get("/organizations/email-invite", h.VisitEmailInvite)
		})

		r.Post("/auth/logout", h.auth.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Middleware)

		r.Get("/auth/me", h.auth.Me)
		r.Post("/onboarding", h.CompleteOnboarding)

		// Organizations
		r.Post("/v1/organizations", h.CreateOrganization)
		r.Get("/v1/organizations", h.ListOrganizations)
		r.Delete("/v1/organizations/{slug}", h.DeleteOrganization)

		// Invite administration
		r.Post("/v1/organizations/{slug}/invite-links", h.CreateInviteLink)
		r.Get("/v1/organizations/{slug}/invite-links", h.ListInviteLinks)
		r.Delete("/v1/organizations/{slug}/invite-links/{id}", h.DeleteInviteLink)
		r.Post("/v1/organizations/{slug}/invites", h.CreateEmailInvite)
		r.Get("/v1/organizations/{slug}/invites", h.ListEmailInvites)
		r.Delete("/v1/organizations/{slug}/invites/{id}", h.DeactivateEmailInvite)

		// Account
		r.Delete("/v1/account", h.DeleteAccount)
	})
}

func (h *Handler) limit(r chi.Router, limiters ...func(cache.Client) func(http.Handler) http.Handler) {
	if h.limiter == nil {
		return
	}
	for _, l := range limiters {
		r.Use(l(h.limiter))
	}
}

// Healthz reports database reachability
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serverError logs err, reports it to Sentry and writes a generic 500.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error(message,
		zap.String("path", r.URL.Path),
		zap.Error(err))
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	}
	respondError(w, http.StatusInternalServerError, message)
}

// sessionUserGone ends a session whose user no longer exists.
func (h *Handler) sessionUserGone(w http.ResponseWriter, userID string) {
	h.logger.Info("session for deleted user", zap.String("user_id", userID))
	h.sessions.EndSession(w)
	respondError(w, http.StatusUnauthorized, "session is no longer valid")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}
