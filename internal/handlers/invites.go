package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/invite"
	"orgkit-backend/internal/models"
	"orgkit-backend/internal/storage"
)

const maxInviteLinkHours = 30 * 24

// VisitInviteLink handles a shared invite link
// @Summary Visit invite link
// @Description Stores a valid invite in a signed cookie; anonymous visitors go to registration, signed-in users are reconciled immediately
// @Tags invites
// @Param token query string true "Invite link token"
// @Success 302 "Redirect"
// @Router /organizations/invite-link [get]
func (h *Handler) VisitInviteLink(w http.ResponseWriter, r *http.Request) {
	h.visitInvite(w, r, invite.KindLink)
}

// VisitEmailInvite handles the link inside an invite email
// @Summary Visit email invite
// @Description Same as the invite link visit, for single-recipient email invites
// @Tags invites
// @Param token query string true "Email invite token"
// @Success 302 "Redirect"
// @Router /organizations/email-invite [get]
func (h *Handler) VisitEmailInvite(w http.ResponseWriter, r *http.Request) {
	h.visitInvite(w, r, invite.KindEmail)
}

func (h *Handler) visitInvite(w http.ResponseWriter, r *http.Request, kind invite.Kind) {
	ctx := r.Context()
	userID, authenticated := auth.UserIDFromContext(ctx)
	token := strings.TrimSpace(r.URL.Query().Get("token"))

	var inv *invite.Invite
	if token != "" {
		visited := &invite.Payload{Token: token}
		lookup := invite.Pending{Link: visited}
		if kind == invite.KindEmail {
			lookup = invite.Pending{Email: visited}
		}

		var err error
		inv, err = h.invites.Resolve(ctx, lookup, nil)
		if err != nil {
			h.serverError(w, r, "failed to resolve invite", err)
			return
		}
	}

	if inv == nil {
		h.codec.Clear(w, kind.CookieName())
		setToast(w, toastError, msgInvalidInvite)
		if authenticated {
			http.Redirect(w, r, pathOrganizations, http.StatusFound)
			return
		}
		http.Redirect(w, r, pathRegister, http.StatusFound)
		return
	}

	payload := invite.Payload{Token: inv.Token, ExpiresAt: inv.ExpiresAt}

	if !authenticated {
		h.issueInviteCookie(w, r, kind, payload, pathRegister)
		return
	}

	user, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		h.sessions.EndSession(w)
		h.issueInviteCookie(w, r, kind, payload, pathRegister)
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to load user", err)
		return
	}

	if kind == invite.KindEmail && !strings.EqualFold(strings.TrimSpace(inv.Email), strings.TrimSpace(user.Email)) {
		h.logger.Info("email invite visited by another account",
			zap.String("invite_id", inv.ID),
			zap.String("user_id", user.ID))
		setToast(w, toastError, msgWrongRecipient)
		http.Redirect(w, r, pathOrganizations, http.StatusFound)
		return
	}

	if err := h.codec.Issue(w, kind.CookieName(), payload); err != nil {
		h.serverError(w, r, "failed to store invite", err)
		return
	}

	pending := h.pendingInvites(r)
	if kind == invite.KindEmail {
		pending.Email = &payload
	} else {
		pending.Link = &payload
	}

	target, err := h.reconcileInvites(w, r, user, pending)
	if err != nil {
		h.serverError(w, r, "failed to reconcile invites", err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) issueInviteCookie(w http.ResponseWriter, r *http.Request, kind invite.Kind, payload invite.Payload, target string) {
	if err := h.codec.Issue(w, kind.CookieName(), payload); err != nil {
		h.serverError(w, r, "failed to store invite", err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type inviteLinkResponse struct {
	models.InviteLink
	URL string `json:"url"`
}

func (h *Handler) inviteURL(kind invite.Kind, token string) string {
	path := "/organizations/invite-link"
	if kind == invite.KindEmail {
		path = "/organizations/email-invite"
	}
	return h.opts.SiteURL + path + "?token=" + url.QueryEscape(token)
}

// CreateInviteLink issues a reusable invite link
// @Summary Create invite link
// @Tags invites
// @Accept json
// @Produce json
// @Param slug path string true "Organization slug"
// @Param body body models.CreateInviteLinkInput false "Expiry"
// @Success 201 {object} inviteLinkResponse
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /v1/organizations/{slug}/invite-links [post]
func (h *Handler) CreateInviteLink(w http.ResponseWriter, r *http.Request) {
	org, membership, ok := h.requireRole(w, r, models.Role.CanManageInvites)
	if !ok {
		return
	}

	var input models.CreateInviteLinkInput
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if input.ExpiresInHours < 0 || input.ExpiresInHours > maxInviteLinkHours {
		respondError(w, http.StatusBadRequest, "expires_in_hours out of range")
		return
	}

	ttl := h.opts.InviteLinkTTL
	if input.ExpiresInHours > 0 {
		ttl = time.Duration(input.ExpiresInHours) * time.Hour
	}

	link, err := h.store.CreateInviteLink(r.Context(), org.ID, membership.UserID, time.Now().Add(ttl))
	if err != nil {
		h.serverError(w, r, "failed to create invite link", err)
		return
	}

	respondJSON(w, http.StatusCreated, inviteLinkResponse{InviteLink: *link, URL: h.inviteURL(invite.KindLink, link.Token)})
}

// ListInviteLinks lists the organization's invite links
// @Summary List invite links
// @Tags invites
// @Produce json
// @Param slug path string true "Organization slug"
// @Success 200 {array} inviteLinkResponse
// @Security BearerAuth
// @Router /v1/organizations/{slug}/invite-links [get]
func (h *Handler) ListInviteLinks(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requireRole(w, r, models.Role.CanManageInvites)
	if !ok {
		return
	}

	links, err := h.store.ListInviteLinks(r.Context(), org.ID)
	if err != nil {
		h.serverError(w, r, "failed to list invite links", err)
		return
	}

	result := make([]inviteLinkResponse, 0, len(links))
	for _, l := range links {
		result = append(result, inviteLinkResponse{InviteLink: l, URL: h.inviteURL(invite.KindLink, l.Token)})
	}
	respondJSON(w, http.StatusOK, result)
}

// DeleteInviteLink revokes an invite link
// @Summary Delete invite link
// @Tags invites
// @Param slug path string true "Organization slug"
// @Param id path string true "Invite link ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /v1/organizations/{slug}/invite-links/{id} [delete]
func (h *Handler) DeleteInviteLink(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requireRole(w, r, models.Role.CanManageInvites)
	if !ok {
		return
	}

	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	err := h.store.DeleteInviteLink(r.Context(), org.ID, id)
	if errors.Is(err, storage.ErrInviteNotFound) {
		respondError(w, http.StatusNotFound, "invite link not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to delete invite link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateEmailInvite invites one email address with a role
// @Summary Create email invite
// @Description Creates a single-use invite and queues the invitation email
// @Tags invites
// @Accept json
// @Produce json
// @Param slug path string true "Organization slug"
// @Param body body models.CreateEmailInviteInput true "Recipient and role"
// @Success 201 {object} models.EmailInvite
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /v1/organizations/{slug}/invites [post]
func (h *Handler) CreateEmailInvite(w http.ResponseWriter, r *http.Request) {
	org, membership, ok := h.requireRole(w, r, models.Role.CanManageInvites)
	if !ok {
		return
	}

	var input models.CreateEmailInviteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Role == "" {
		input.Role = models.RoleMember
	}
	if !strings.Contains(input.Email, "@") {
		respondError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if input.Role == models.RoleOwner {
		respondError(w, http.StatusBadRequest, "email invites cannot grant the owner role")
		return
	}
	if !input.Role.Valid() {
		respondError(w, http.StatusBadRequest, "invalid role")
		return
	}

	inv, err := h.store.CreateEmailInvite(r.Context(), org.ID, membership.UserID, input, time.Now().Add(h.opts.EmailInviteTTL))
	if err != nil {
		h.serverError(w, r, "failed to create email invite", err)
		return
	}

	h.publishInviteRequested(r, org, inv, membership.UserID)
	respondJSON(w, http.StatusCreated, inv)
}

func (h *Handler) publishInviteRequested(r *http.Request, org *models.Organization, inv *models.EmailInvite, invitedBy string) {
	if h.publisher == nil {
		h.logger.Warn("no event publisher configured, invite email not queued", zap.String("invite_id", inv.ID))
		return
	}

	event := models.EmailInviteRequested{
		V:                1,
		TS:               time.Now().UnixMilli(),
		InviteID:         inv.ID,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Email:            inv.Email,
		Role:             string(inv.Role),
		AcceptURL:        h.inviteURL(invite.KindEmail, inv.Token),
		InvitedBy:        invitedBy,
	}
	if err := h.publisher.Publish(r.Context(), models.SubjectEmailInviteRequested, event); err != nil {
		h.logger.Warn("failed to queue invite email",
			zap.String("invite_id", inv.ID),
			zap.Error(err))
	}
}

// ListEmailInvites lists outstanding email invites
// @Summary List email invites
// @Tags invites
// @Produce json
// @Param slug path string true "Organization slug"
// @Success 200 {array} models.EmailInvite
// @Security BearerAuth
// @Router /v1/organizations/{slug}/invites [get]
func (h *Handler) ListEmailInvites(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requireRole(w, r, models.Role.CanManageInvites)
	if !ok {
		return
	}

	invites, err := h.store.ListEmailInvites(r.Context(), org.ID)
	if err != nil {
		h.serverError(w, r, "failed to list email invites", err)
		return
	}
	respondJSON(w, http.StatusOK, invites)
}

// DeactivateEmailInvite revokes an email invite
// @Summary Revoke email invite
// @Tags invites
// @Param slug path string true "Organization slug"
// @Param id path string true "Email invite ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /v1/organizations/{slug}/invites/{id} [delete]
func (h *Handler) DeactivateEmailInvite(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.requireRole(w, r, models.Role.CanManageInvites)
	if !ok {
		return
	}

	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	err := h.store.DeactivateEmailInvite(r.Context(), org.ID, id)
	if errors.Is(err, storage.ErrInviteNotFound) {
		respondError(w, http.StatusNotFound, "invite not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to revoke invite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusNotFound, "not found")
		return "", false
	}
	return id.String(), true
}
