package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"orgkit-backend/internal/models"
)

const (
	slugAttempts   = 5
	slugSuffixSize = 3
	orgColumns     = `id, name, slug, logo_url, billing_email, trial_ends_at, customer_id, created_at`
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses every run of characters outside
// [a-z0-9] into a single dash.
func Slugify(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "org"
	}
	return slug
}

// CreateOrganization inserts the organization and the owner membership in one
// transaction. Slug collisions are retried with a random suffix.
func (s *Storage) CreateOrganization(ctx context.Context, ownerID string, input models.CreateOrganizationInput) (*models.Organization, error) {
	base := Slugify(input.Name)

	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug := base
		if attempt > 0 {
			suffix, err := GenerateToken(slugSuffixSize)
			if err != nil {
				return nil, err
			}
			slug = base + "-" + suffix
		}

		org, err := s.createOrganizationWithSlug(ctx, ownerID, input.Name, slug)
		if errors.Is(err, ErrSlugTaken) {
			continue
		}
		return org, err
	}

	return nil, ErrSlugTaken
}

func (s *Storage) createOrganizationWithSlug(ctx context.Context, ownerID, name, slug string) (*models.Organization, error) {
	var org models.Organization
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO organizations (id, name, slug)
			VALUES ($1, $2, $3)
			RETURNING ` + orgColumns

		if err := tx.QueryRowxContext(ctx, query, uuid.NewString(), name, slug).StructScan(&org); err != nil {
			if isUniqueViolation(err) {
				return ErrSlugTaken
			}
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO organization_memberships (organization_id, user_id, role)
			VALUES ($1, $2, $3)
		`, org.ID, ownerID, models.RoleOwner)
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return &org, nil
}

func (s *Storage) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.GetContext(ctx, &org, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, err
	}

	return &org, nil
}

// ListUserOrganizations returns the organizations where the user holds an
// active membership, with that membership's role.
func (s *Storage) ListUserOrganizations(ctx context.Context, userID string) ([]models.OrganizationWithRole, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.logo_url, o.billing_email, o.trial_ends_at,
			o.customer_id, o.created_at, m.role
		FROM organizations o
		JOIN organization_memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.deactivated_at IS NULL
		ORDER BY o.name
	`

	result := make([]models.OrganizationWithRole, 0)
	if err := s.db.SelectContext(ctx, &result, query, userID); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Storage) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrgNotFound
	}
	return nil
}
