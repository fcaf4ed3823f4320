package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const toastCookie = "toast"

type toastKind string

const (
	toastSuccess toastKind = "success"
	toastInfo    toastKind = "info"
	toastError   toastKind = "error"
)

type toast struct {
	Kind    toastKind `json:"kind"`
	Message string    `json:"message"`
}

// setToast leaves a one-shot notification for the UI to display after the
// redirect. The UI reads and clears it, so it is not HTTP-only.
func setToast(w http.ResponseWriter, kind toastKind, message string) {
	data, err := json.Marshal(toast{Kind: kind, Message: message})
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     toastCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   60,
		SameSite: http.SameSiteLaxMode,
	})
}
