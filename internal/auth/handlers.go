package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"orgkit-backend/internal/models"
	"orgkit-backend/internal/storage"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Handler struct {
	users    UserStore
	sessions *Sessions
	logger   *zap.Logger
}

func NewHandler(users UserStore, sessions *Sessions, logger *zap.Logger) *Handler {
	return &Handler{users: users, sessions: sessions, logger: logger}
}

// Logout clears the session cookie
// @Summary User logout
// @Description Clears the session cookie
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]bool "Success response"
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.EndSession(w)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// Me returns the current authenticated user
// @Summary Get current user
// @Description Returns the currently authenticated user's profile and onboarding state
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "User data"
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "User not found"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load user", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user":      user,
		"onboarded": user.Onboarded(),
	})
}
