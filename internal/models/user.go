package models

import "time"

type User struct {
	ID          string    `json:"id" db:"id"`
	AuthID      string    `json:"-" db:"auth_id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	PictureURL  *string   `json:"picture_url,omitempty" db:"picture_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Onboarded reports whether the profile step has set a display name.
func (u *User) Onboarded() bool {
	return u != nil && u.DisplayName != ""
}

// Identity is what the external auth provider returns after a successful
// code exchange or OTP verification.
type Identity struct {
	AuthID     string
	Email      string
	Name       string
	PictureURL string
}

type UpdateProfileInput struct {
	DisplayName string  `json:"name"`
	PictureURL  *string `json:"picture_url"`
}
