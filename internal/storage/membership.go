package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"orgkit-backend/internal/models"
)

const membershipColumns = `id, organization_id, user_id, role, deactivated_at, created_at`

var errMembershipExists = errors.New("membership already active")

// AddMember inserts an active membership. An existing active membership is
// left untouched and returned with created=false; a deactivated one is
// reactivated with the new role.
func (s *Storage) AddMember(ctx context.Context, orgID, userID string, role models.Role) (*models.Membership, bool, error) {
	m, created, err := addMember(ctx, s.db, orgID, userID, role)
	if err != nil {
		return nil, false, err
	}
	if created {
		return m, true, nil
	}

	existing, err := s.GetMembership(ctx, orgID, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func addMember(ctx context.Context, q sqlx.QueryerContext, orgID, userID string, role models.Role) (*models.Membership, bool, error) {
	query := `
		INSERT INTO organization_memberships (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, deactivated_at = NULL, created_at = NOW()
		WHERE organization_memberships.deactivated_at IS NOT NULL
		RETURNING ` + membershipColumns

	var m models.Membership
	err := q.QueryRowxContext(ctx, query, orgID, userID, role).StructScan(&m)
	switch {
	case err == sql.ErrNoRows, isUniqueViolation(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	return &m, true, nil
}

// IsMember reports whether the user holds an active membership.
func (s *Storage) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM organization_memberships
			WHERE organization_id = $1 AND user_id = $2 AND deactivated_at IS NULL
		)
	`, orgID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Storage) GetMembership(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	var m models.Membership
	err := s.db.GetContext(ctx, &m, `
		SELECT `+membershipColumns+`
		FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID)
	if err == sql.ErrNoRows {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// JoinOrganization adds the membership and, only when it was newly created,
// deactivates the email invite that granted it. Both writes share one
// transaction. If the email invite is no longer active the membership is
// rolled back and ErrInviteConsumed is returned.
func (s *Storage) JoinOrganization(ctx context.Context, req models.JoinRequest) (*models.Membership, bool, error) {
	var joined *models.Membership
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		m, created, err := addMember(ctx, tx, req.OrganizationID, req.UserID, req.Role)
		if err != nil {
			return err
		}
		if !created {
			return errMembershipExists
		}

		if req.DeactivateEmailInviteID != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE organization_email_invite_links
				SET deactivated_at = NOW()
				WHERE id = $1 AND deactivated_at IS NULL
			`, req.DeactivateEmailInviteID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrInviteConsumed
			}
		}

		joined = m
		return nil
	})
	if errors.Is(err, errMembershipExists) {
		existing, err := s.GetMembership(ctx, req.OrganizationID, req.UserID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return joined, true, nil
}
