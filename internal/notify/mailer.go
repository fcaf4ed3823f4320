package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"orgkit-backend/internal/models"
)

var inviteTemplate = template.Must(template.New("invite").Parse(
	`<p>You have been invited to join <strong>{{.OrganizationName}}</strong> as {{.Role}}.</p>
<p><a href="{{.AcceptURL}}">Accept invitation</a></p>
<p>If you were not expecting this invitation you can ignore this email.</p>`))

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// Mailer sends transactional email through an HTTP email API.
type Mailer struct {
	httpClient *resty.Client
	from       string
	logger     *zap.Logger
}

func NewMailer(baseURL, apiKey, from string, logger *zap.Logger) *Mailer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Mailer{httpClient: client, from: from, logger: logger}
}

func (m *Mailer) SendInvite(ctx context.Context, event models.EmailInviteRequested) error {
	var body strings.Builder
	if err := inviteTemplate.Execute(&body, event); err != nil {
		return fmt.Errorf("render invite email: %w", err)
	}

	var result emailResponse
	resp, err := m.httpClient.R().
		SetContext(ctx).
		SetBody(emailRequest{
			From:    m.from,
			To:      []string{event.Email},
			Subject: fmt.Sprintf("You're invited to join %s", event.OrganizationName),
			HTML:    body.String(),
		}).
		SetResult(&result).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("send invite email: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send invite email: status %d: %s", resp.StatusCode(), resp.String())
	}

	m.logger.Info("invite email sent",
		zap.String("invite_id", event.InviteID),
		zap.String("organization_id", event.OrganizationID),
		zap.String("message_id", result.ID),
	)
	return nil
}
