package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"orgkit-backend/internal/models"
)

// ErrInvalidGrant is returned when the provider rejects a code or OTP.
var ErrInvalidGrant = errors.New("identity provider rejected the grant")

type providerUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name      string `json:"name"`
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

type providerSession struct {
	User providerUser `json:"user"`
}

type providerError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ProviderClient talks to the hosted identity provider that owns OAuth and
// magic-link sign-in.
type ProviderClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewProviderClient(baseURL, apiKey string, logger *zap.Logger) *ProviderClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("apikey", apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ProviderClient{httpClient: client, logger: logger}
}

// ExchangeCode trades an OAuth authorization code for the signed-in identity.
func (c *ProviderClient) ExchangeCode(ctx context.Context, code string) (models.Identity, error) {
	return c.grant(ctx, "/token", map[string]string{"grant_type": "authorization_code"}, map[string]string{
		"auth_code": code,
	})
}

// VerifyOTP confirms a magic-link or email OTP token hash.
func (c *ProviderClient) VerifyOTP(ctx context.Context, tokenHash, otpType string) (models.Identity, error) {
	return c.grant(ctx, "/verify", nil, map[string]string{
		"token_hash": tokenHash,
		"type":       otpType,
	})
}

func (c *ProviderClient) grant(ctx context.Context, path string, query, body map[string]string) (models.Identity, error) {
	var session providerSession
	var failure providerError

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetBody(body).
		SetResult(&session).
		SetError(&failure).
		Post(path)
	if err != nil {
		return models.Identity{}, fmt.Errorf("identity provider %s: %w", path, err)
	}

	if resp.IsError() {
		c.logger.Warn("identity provider rejected request",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", failure.Error),
			zap.String("description", failure.Description),
		)
		if resp.StatusCode() < http.StatusInternalServerError {
			return models.Identity{}, ErrInvalidGrant
		}
		return models.Identity{}, fmt.Errorf("identity provider %s: status %d", path, resp.StatusCode())
	}

	if session.User.ID == "" || session.User.Email == "" {
		return models.Identity{}, fmt.Errorf("identity provider %s: incomplete user", path)
	}

	name := session.User.UserMetadata.FullName
	if name == "" {
		name = session.User.UserMetadata.Name
	}

	return models.Identity{
		AuthID:     session.User.ID,
		Email:      session.User.Email,
		Name:       name,
		PictureURL: session.User.UserMetadata.AvatarURL,
	}, nil
}
