package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/models"
	"orgkit-backend/internal/storage"
)

// OAuthCallback completes OAuth sign-in
// @Summary OAuth callback
// @Description Exchanges the provider code, starts a session and reconciles pending invites
// @Tags auth
// @Param code query string true "Authorization code"
// @Success 302 "Redirect to dashboard, onboarding or organizations"
// @Router /auth/callback [get]
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		h.signInFailed(w, r, "Missing authorization code")
		return
	}

	identity, err := h.provider.ExchangeCode(r.Context(), code)
	if errors.Is(err, auth.ErrInvalidGrant) {
		h.signInFailed(w, r, "Sign-in link is invalid or has expired")
		return
	}
	if err != nil {
		h.serverError(w, r, "code exchange failed", err)
		return
	}

	h.completeSignIn(w, r, identity)
}

// ConfirmOTP completes magic-link and email OTP sign-in
// @Summary Confirm email OTP
// @Description Verifies the token hash, starts a session and reconciles pending invites
// @Tags auth
// @Param token_hash query string true "Token hash from the email link"
// @Param type query string false "OTP type" default(email)
// @Success 302 "Redirect to dashboard, onboarding or organizations"
// @Router /auth/confirm [get]
func (h *Handler) ConfirmOTP(w http.ResponseWriter, r *http.Request) {
	tokenHash := strings.TrimSpace(r.URL.Query().Get("token_hash"))
	otpType := strings.TrimSpace(r.URL.Query().Get("type"))
	if otpType == "" {
		otpType = "email"
	}
	if tokenHash == "" {
		h.signInFailed(w, r, "Missing confirmation token")
		return
	}

	identity, err := h.provider.VerifyOTP(r.Context(), tokenHash, otpType)
	if errors.Is(err, auth.ErrInvalidGrant) {
		h.signInFailed(w, r, "Confirmation link is invalid or has expired")
		return
	}
	if err != nil {
		h.serverError(w, r, "otp verification failed", err)
		return
	}

	h.completeSignIn(w, r, identity)
}

func (h *Handler) completeSignIn(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	user, err := h.store.UpsertUserFromIdentity(r.Context(), identity)
	if err != nil {
		h.serverError(w, r, "failed to resolve user", err)
		return
	}

	if err := h.sessions.StartSession(w, user.ID); err != nil {
		h.serverError(w, r, "failed to start session", err)
		return
	}

	target, err := h.reconcileInvites(w, r, user, h.pendingInvites(r))
	if err != nil {
		h.serverError(w, r, "failed to reconcile invites", err)
		return
	}

	h.logger.Info("user signed in", zap.String("user_id", user.ID), zap.String("redirect", target))
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) signInFailed(w http.ResponseWriter, r *http.Request, message string) {
	setToast(w, toastError, message)
	http.Redirect(w, r, pathLogin, http.StatusFound)
}

type onboardingRequest struct {
	Name             string  `json:"name"`
	PictureURL       *string `json:"picture_url"`
	OrganizationName string  `json:"organization_name"`
}

// CompleteOnboarding sets the profile and finishes a deferred invite
// @Summary Complete onboarding
// @Description Sets the display name, then joins the pending invite's organization or creates a new one
// @Tags onboarding
// @Accept json
// @Produce json
// @Param body body onboardingRequest true "Profile"
// @Success 200 {object} map[string]interface{} "User and redirect target"
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /onboarding [post]
func (h *Handler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := auth.UserIDFromContext(ctx)

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		h.sessionUserGone(w, userID)
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to load user", err)
		return
	}

	inv, err := h.resolvePending(ctx, w, r, user, h.pendingInvites(r))
	if err != nil {
		h.serverError(w, r, "failed to resolve invites", err)
		return
	}
	if inv == nil && req.OrganizationName == "" && !user.Onboarded() {
		respondError(w, http.StatusBadRequest, "organization_name is required")
		return
	}

	user, err = h.store.UpdateUserProfile(ctx, userID, models.UpdateProfileInput{
		DisplayName: req.Name,
		PictureURL:  req.PictureURL,
	})
	if err != nil {
		h.serverError(w, r, "failed to update profile", err)
		return
	}

	var target string
	switch {
	case inv != nil:
		outcome, err := h.invites.Accept(ctx, inv, user)
		if err != nil {
			h.serverError(w, r, "failed to accept invite", err)
			return
		}
		target = h.applyOutcome(w, user, inv, outcome)
	case req.OrganizationName != "":
		org, err := h.store.CreateOrganization(ctx, user.ID, models.CreateOrganizationInput{Name: req.OrganizationName})
		if errors.Is(err, storage.ErrUserNotFound) {
			h.sessionUserGone(w, userID)
			return
		}
		if err != nil {
			h.serverError(w, r, "failed to create organization", err)
			return
		}
		target = dashboardPath(org.Slug)
	default:
		target = pathOrganizations
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"redirect_to": target,
	})
}
