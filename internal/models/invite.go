package models

import "time"

// InviteLink is a reusable invite into an organization, valid until ExpiresAt.
type InviteLink struct {
	ID               string    `db:"id" json:"id"`
	OrganizationID   string    `db:"organization_id" json:"organization_id"`
	Token            string    `db:"token" json:"token"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	CreatedBy        *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	OrganizationSlug string    `db:"organization_slug" json:"-"`
	OrganizationName string    `db:"organization_name" json:"-"`
}

// EmailInvite is a single-use invite addressed to one email with an explicit role.
type EmailInvite struct {
	ID               string     `db:"id" json:"id"`
	OrganizationID   string     `db:"organization_id" json:"organization_id"`
	Email            string     `db:"email" json:"email"`
	Role             Role       `db:"role" json:"role"`
	Token            string     `db:"token" json:"-"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	DeactivatedAt    *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	InvitedBy        *string    `db:"invited_by" json:"invited_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	OrganizationSlug string     `db:"organization_slug" json:"-"`
	OrganizationName string     `db:"organization_name" json:"-"`
}

type CreateInviteLinkInput struct {
	ExpiresInHours int `json:"expires_in_hours"`
}

type CreateEmailInviteInput struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// PurgeResult counts the rows touched by one invite reaper pass.
type PurgeResult struct {
	LinksDeleted      int64
	EmailsDeactivated int64
}
