package handlers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"orgkit-backend/internal/invite"
	"orgkit-backend/internal/models"
)

const (
	pathOnboarding    = "/onboarding"
	pathOrganizations = "/organizations"
	pathRegister      = "/register"
	pathLogin         = "/login"

	msgJoined         = "Successfully joined organization"
	msgInvalidInvite  = "This invite is invalid or has expired"
	msgWrongRecipient = "This invite was sent to a different email address"
)

func dashboardPath(slug string) string {
	return fmt.Sprintf("/organizations/%s/dashboard", slug)
}

func homePath(user *models.User) string {
	if user.Onboarded() {
		return pathOrganizations
	}
	return pathOnboarding
}

// pendingInvites reads both invite cookies. Invalid cookies are absent.
func (h *Handler) pendingInvites(r *http.Request) invite.Pending {
	var pending invite.Pending
	if p, ok := h.codec.Read(r, invite.EmailCookie); ok {
		pending.Email = &p
	}
	if p, ok := h.codec.Read(r, invite.LinkCookie); ok {
		pending.Link = &p
	}
	return pending
}

// resolvePending validates pending invites for user and clears cookies that
// turned out not to apply. A resolved email invite leaves the link cookie in
// place for a later visit.
func (h *Handler) resolvePending(ctx context.Context, w http.ResponseWriter, r *http.Request, user *models.User, pending invite.Pending) (*invite.Invite, error) {
	inv, err := h.invites.Resolve(ctx, pending, user)
	if err != nil {
		return nil, err
	}

	emailCookie := hasCookie(r, invite.EmailCookie) || pending.Email != nil
	linkCookie := hasCookie(r, invite.LinkCookie) || pending.Link != nil

	switch {
	case inv == nil:
		if emailCookie {
			h.codec.Clear(w, invite.EmailCookie)
		}
		if linkCookie {
			h.codec.Clear(w, invite.LinkCookie)
		}
	case inv.Kind == invite.KindLink && emailCookie:
		h.codec.Clear(w, invite.EmailCookie)
	}

	return inv, nil
}

// applyOutcome maps an acceptance outcome to its redirect target, toast and
// cookie handling.
func (h *Handler) applyOutcome(w http.ResponseWriter, user *models.User, inv *invite.Invite, outcome invite.Outcome) string {
	switch outcome.Kind {
	case invite.OutcomeInvalid:
		h.codec.Clear(w, inv.Kind.CookieName())
		setToast(w, toastError, msgInvalidInvite)
		return homePath(user)
	case invite.OutcomeJoined:
		h.codec.Clear(w, inv.Kind.CookieName())
		setToast(w, toastSuccess, msgJoined)
		return dashboardPath(outcome.OrganizationSlug)
	case invite.OutcomeAlreadyMember:
		h.codec.Clear(w, inv.Kind.CookieName())
		setToast(w, toastInfo, fmt.Sprintf("You are already a member of %s", outcome.OrganizationName))
		return dashboardPath(outcome.OrganizationSlug)
	default:
		return pathOnboarding
	}
}

// reconcileInvites is the funnel shared by every sign-in and invite entry
// point. It returns where the browser should go next.
func (h *Handler) reconcileInvites(w http.ResponseWriter, r *http.Request, user *models.User, pending invite.Pending) (string, error) {
	ctx := r.Context()

	inv, err := h.resolvePending(ctx, w, r, user, pending)
	if err != nil {
		return "", err
	}
	if inv == nil {
		return homePath(user), nil
	}

	outcome, err := h.invites.Accept(ctx, inv, user)
	if err != nil {
		return "", err
	}

	h.logger.Info("invite reconciled",
		zap.String("user_id", user.ID),
		zap.String("organization_id", inv.OrganizationID),
		zap.String("via", string(inv.Kind)),
		zap.String("outcome", string(outcome.Kind)))

	return h.applyOutcome(w, user, inv, outcome), nil
}

func hasCookie(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}
