package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"orgkit-backend/internal/models"
)

const userColumns = `id, auth_id, email, display_name, picture_url, created_at`

// UpsertUserFromIdentity creates the local user for a provider identity on
// first sign-in. Existing users keep their display name so that onboarding
// state is never reset by a later login.
func (s *Storage) UpsertUserFromIdentity(ctx context.Context, identity models.Identity) (*models.User, error) {
	query := `
		INSERT INTO users (auth_id, email, display_name, picture_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (auth_id) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + userColumns

	var user models.User
	if err := s.db.QueryRowContext(ctx, query,
		identity.AuthID,
		identity.Email,
		identity.Name,
		nullIfEmpty(identity.PictureURL),
	).Scan(
		&user.ID,
		&user.AuthID,
		&user.Email,
		&user.DisplayName,
		&user.PictureURL,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user models.User
	if err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.AuthID,
		&user.Email,
		&user.DisplayName,
		&user.PictureURL,
		&user.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

func (s *Storage) UpdateUserProfile(ctx context.Context, id string, input models.UpdateProfileInput) (*models.User, error) {
	query := `
		UPDATE users
		SET display_name = $2, picture_url = COALESCE($3, picture_url)
		WHERE id = $1
		RETURNING ` + userColumns

	var user models.User
	if err := s.db.QueryRowContext(ctx, query, id, input.DisplayName, input.PictureURL).Scan(
		&user.ID,
		&user.AuthID,
		&user.Email,
		&user.DisplayName,
		&user.PictureURL,
		&user.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

// DeleteUser removes the user and every organization they solely own.
// Memberships in other organizations cascade with the user row.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM organizations o
			WHERE o.id IN (
				SELECT m.organization_id
				FROM organization_memberships m
				WHERE m.user_id = $1 AND m.role = 'owner' AND m.deactivated_at IS NULL
			)
			AND NOT EXISTS (
				SELECT 1 FROM organization_memberships other
				WHERE other.organization_id = o.id
				  AND other.user_id <> $1
				  AND other.role = 'owner'
				  AND other.deactivated_at IS NULL
			)
		`, id)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}
