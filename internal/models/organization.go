package models

import "time"

type Organization struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Slug         string     `db:"slug" json:"slug"`
	LogoURL      *string    `db:"logo_url" json:"logo_url,omitempty"`
	BillingEmail *string    `db:"billing_email" json:"billing_email,omitempty"`
	TrialEndsAt  *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	CustomerID   *string    `db:"customer_id" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

type CreateOrganizationInput struct {
	Name string `json:"name"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManageInvites is true for roles allowed to issue and revoke invites.
func (r Role) CanManageInvites() bool {
	return r == RoleOwner || r == RoleAdmin
}

type Membership struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	Role           Role       `db:"role" json:"role"`
	DeactivatedAt  *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

func (m *Membership) IsActive() bool {
	return m != nil && m.DeactivatedAt == nil
}

// OrganizationWithRole is a row of the caller's organization list.
type OrganizationWithRole struct {
	Organization
	Role Role `db:"role" json:"role"`
}

// JoinRequest is the single write performed when an invite is accepted.
// DeactivateEmailInviteID is set only for single-use email invites.
type JoinRequest struct {
	OrganizationID          string
	UserID                  string
	Role                    Role
	DeactivateEmailInviteID string
}
