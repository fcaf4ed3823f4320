package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"orgkit-backend/internal/models"
)

type SlackClient struct {
	webhookURL string
	httpClient *resty.Client
	logger     *zap.Logger
}

type SlackMessage struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Type   string  `json:"type"`
	Text   *Text   `json:"text,omitempty"`
	Fields []*Text `json:"fields,omitempty"`
}

type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func NewSlackClient(webhookURL string, logger *zap.Logger) *SlackClient {
	return &SlackClient{
		webhookURL: webhookURL,
		httpClient: resty.New().SetTimeout(10 * time.Second),
		logger:     logger,
	}
}

// SendMemberJoined posts a join notice. Without a webhook it is a no-op.
func (c *SlackClient) SendMemberJoined(ctx context.Context, event models.MemberJoined) error {
	if c.webhookURL == "" {
		c.logger.Debug("no SLACK_WEBHOOK_URL configured, skipping member joined notice")
		return nil
	}

	return c.sendMessage(ctx, buildMemberJoinedMessage(event))
}

func buildMemberJoinedMessage(event models.MemberJoined) SlackMessage {
	via := "invite link"
	if event.Via == "email" {
		via = "email invite"
	}

	summary := fmt.Sprintf("%s joined %s", event.UserEmail, event.OrganizationName)
	return SlackMessage{
		Text: summary,
		Blocks: []Block{
			{
				Type: "header",
				Text: &Text{Type: "plain_text", Text: "👋 " + summary, Emoji: true},
			},
			{
				Type: "section",
				Fields: []*Text{
					{Type: "mrkdwn", Text: "*Organization:*\n" + event.OrganizationSlug},
					{Type: "mrkdwn", Text: "*Role:*\n" + event.Role},
					{Type: "mrkdwn", Text: "*Via:*\n" + via},
				},
			},
		},
	}
}

func (c *SlackClient) sendMessage(ctx context.Context, message SlackMessage) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("post error: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("slack error: %s", resp.String())
	}
	return nil
}
