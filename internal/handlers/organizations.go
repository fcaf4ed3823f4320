package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/models"
	"orgkit-backend/internal/storage"
)

// requireRole loads the organization named by the slug URL param and the
// caller's active membership in it. Non-members get 404, members whose role
// fails allowed get 403.
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed func(models.Role) bool) (*models.Organization, *models.Membership, bool) {
	ctx := r.Context()
	userID, _ := auth.UserIDFromContext(ctx)

	org, err := h.store.GetOrganizationBySlug(ctx, chi.URLParam(r, "slug"))
	if errors.Is(err, storage.ErrOrgNotFound) {
		respondError(w, http.StatusNotFound, "organization not found")
		return nil, nil, false
	}
	if err != nil {
		h.serverError(w, r, "failed to load organization", err)
		return nil, nil, false
	}

	membership, err := h.store.GetMembership(ctx, org.ID, userID)
	if errors.Is(err, storage.ErrMembershipNotFound) || (err == nil && !membership.IsActive()) {
		respondError(w, http.StatusNotFound, "organization not found")
		return nil, nil, false
	}
	if err != nil {
		h.serverError(w, r, "failed to load membership", err)
		return nil, nil, false
	}

	if !allowed(membership.Role) {
		respondError(w, http.StatusForbidden, "insufficient role")
		return nil, nil, false
	}

	return org, membership, true
}

// CreateOrganization creates an organization owned by the caller
// @Summary Create organization
// @Tags organizations
// @Accept json
// @Produce json
// @Param body body models.CreateOrganizationInput true "Organization"
// @Success 201 {object} models.Organization
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /v1/organizations [post]
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var input models.CreateOrganizationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	org, err := h.store.CreateOrganization(r.Context(), userID, input)
	if errors.Is(err, storage.ErrSlugTaken) {
		respondError(w, http.StatusConflict, "organization slug already taken")
		return
	}
	if errors.Is(err, storage.ErrUserNotFound) {
		h.sessionUserGone(w, userID)
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to create organization", err)
		return
	}

	h.logger.Info("organization created",
		zap.String("organization_id", org.ID),
		zap.String("slug", org.Slug),
		zap.String("owner_id", userID))
	respondJSON(w, http.StatusCreated, org)
}

// ListOrganizations lists the caller's organizations
// @Summary List organizations
// @Tags organizations
// @Produce json
// @Success 200 {array} models.OrganizationWithRole
// @Security BearerAuth
// @Router /v1/organizations [get]
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	orgs, err := h.store.ListUserOrganizations(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, "failed to list organizations", err)
		return
	}
	respondJSON(w, http.StatusOK, orgs)
}

// DeleteOrganization deletes an organization and everything in it
// @Summary Delete organization
// @Description Owner only. Memberships and invites are removed with it.
// @Tags organizations
// @Param slug path string true "Organization slug"
// @Success 204
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /v1/organizations/{slug} [delete]
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	org, membership, ok := h.requireRole(w, r, func(role models.Role) bool { return role == models.RoleOwner })
	if !ok {
		return
	}

	if err := h.store.DeleteOrganization(r.Context(), org.ID); err != nil && !errors.Is(err, storage.ErrOrgNotFound) {
		h.serverError(w, r, "failed to delete organization", err)
		return
	}

	h.logger.Info("organization deleted",
		zap.String("organization_id", org.ID),
		zap.String("deleted_by", membership.UserID))
	w.WriteHeader(http.StatusNoContent)
}
