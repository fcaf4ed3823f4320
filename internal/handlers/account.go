package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/invite"
	"orgkit-backend/internal/storage"
)

// DeleteAccount deletes the caller and the organizations they solely own
// @Summary Delete account
// @Tags account
// @Success 204
// @Security BearerAuth
// @Router /v1/account [delete]
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	err := h.store.DeleteUser(r.Context(), userID)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		h.serverError(w, r, "failed to delete account", err)
		return
	}

	h.sessions.EndSession(w)
	h.codec.Clear(w, invite.EmailCookie)
	h.codec.Clear(w, invite.LinkCookie)

	h.logger.Info("account deleted", zap.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}
