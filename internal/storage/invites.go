package storage

import (
	"context"
	"database/sql"
	"time"

	"orgkit-backend/internal/models"
)

// InviteTokenBytes is the entropy of invite link and email invite tokens.
const InviteTokenBytes = 24

const inviteLinkColumns = `l.id, l.organization_id, l.token, l.expires_at, l.created_by, l.created_at,
	o.slug AS organization_slug, o.name AS organization_name`

const emailInviteColumns = `e.id, e.organization_id, e.email, e.role, e.token, e.expires_at,
	e.deactivated_at, e.invited_by, e.created_at,
	o.slug AS organization_slug, o.name AS organization_name`

func (s *Storage) CreateInviteLink(ctx context.Context, orgID, createdBy string, expiresAt time.Time) (*models.InviteLink, error) {
	token, err := GenerateToken(InviteTokenBytes)
	if err != nil {
		return nil, err
	}

	query := `
		WITH l AS (
			INSERT INTO organization_invite_links (organization_id, token, expires_at, created_by)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		)
		SELECT ` + inviteLinkColumns + `
		FROM l JOIN organizations o ON o.id = l.organization_id
	`

	var link models.InviteLink
	if err := s.db.GetContext(ctx, &link, query, orgID, token, expiresAt.UTC(), nullIfEmpty(createdBy)); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *Storage) ListInviteLinks(ctx context.Context, orgID string) ([]models.InviteLink, error) {
	query := `
		SELECT ` + inviteLinkColumns + `
		FROM organization_invite_links l
		JOIN organizations o ON o.id = l.organization_id
		WHERE l.organization_id = $1
		ORDER BY l.created_at DESC
	`

	result := make([]models.InviteLink, 0)
	if err := s.db.SelectContext(ctx, &result, query, orgID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) DeleteInviteLink(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_invite_links WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// GetInviteLinkByToken returns the link only while it is unexpired and its
// organization still exists.
func (s *Storage) GetInviteLinkByToken(ctx context.Context, token string) (*models.InviteLink, error) {
	query := `
		SELECT ` + inviteLinkColumns + `
		FROM organization_invite_links l
		JOIN organizations o ON o.id = l.organization_id
		WHERE l.token = $1 AND l.expires_at > NOW()
	`

	var link models.InviteLink
	err := s.db.GetContext(ctx, &link, query, token)
	if err == sql.ErrNoRows {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *Storage) CreateEmailInvite(ctx context.Context, orgID, invitedBy string, input models.CreateEmailInviteInput, expiresAt time.Time) (*models.EmailInvite, error) {
	token, err := GenerateToken(InviteTokenBytes)
	if err != nil {
		return nil, err
	}

	query := `
		WITH e AS (
			INSERT INTO organization_email_invite_links (organization_id, email, role, token, expires_at, invited_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *
		)
		SELECT ` + emailInviteColumns + `
		FROM e JOIN organizations o ON o.id = e.organization_id
	`

	var invite models.EmailInvite
	if err := s.db.GetContext(ctx, &invite, query,
		orgID, input.Email, input.Role, token, expiresAt.UTC(), nullIfEmpty(invitedBy),
	); err != nil {
		return nil, err
	}
	return &invite, nil
}

// ListEmailInvites returns the organization's outstanding email invites.
func (s *Storage) ListEmailInvites(ctx context.Context, orgID string) ([]models.EmailInvite, error) {
	query := `
		SELECT ` + emailInviteColumns + `
		FROM organization_email_invite_links e
		JOIN organizations o ON o.id = e.organization_id
		WHERE e.organization_id = $1 AND e.deactivated_at IS NULL
		ORDER BY e.created_at DESC
	`

	result := make([]models.EmailInvite, 0)
	if err := s.db.SelectContext(ctx, &result, query, orgID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) DeactivateEmailInvite(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organization_email_invite_links
		SET deactivated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deactivated_at IS NULL
	`, id, orgID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// GetEmailInviteByToken returns the invite only while it is active,
// unexpired, and its organization still exists.
func (s *Storage) GetEmailInviteByToken(ctx context.Context, token string) (*models.EmailInvite, error) {
	query := `
		SELECT ` + emailInviteColumns + `
		FROM organization_email_invite_links e
		JOIN organizations o ON o.id = e.organization_id
		WHERE e.token = $1 AND e.deactivated_at IS NULL AND e.expires_at > NOW()
	`

	var invite models.EmailInvite
	err := s.db.GetContext(ctx, &invite, query, token)
	if err == sql.ErrNoRows {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

// PurgeExpiredInvites deletes expired invite links and deactivates expired
// email invites.
func (s *Storage) PurgeExpiredInvites(ctx context.Context, now time.Time) (models.PurgeResult, error) {
	var result models.PurgeResult

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_invite_links WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return result, err
	}
	if result.LinksDeleted, err = res.RowsAffected(); err != nil {
		return result, err
	}

	res, err = s.db.ExecContext(ctx, `
		UPDATE organization_email_invite_links
		SET deactivated_at = $1
		WHERE expires_at <= $1 AND deactivated_at IS NULL
	`, now.UTC())
	if err != nil {
		return result, err
	}
	if result.EmailsDeactivated, err = res.RowsAffected(); err != nil {
		return result, err
	}

	return result, nil
}
