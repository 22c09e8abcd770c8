package alert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// severityColors maps severity names to Slack attachment colors.
var severityColors = map[string]string{
	"low":      "#439FE0",
	"medium":   "warning",
	"high":     "danger",
	"critical": "#8B0000",
}

// SlackChannel posts through a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	channelTag string
}

// NewSlackChannel validates the webhook URL with the same rules as the
// generic channel.
func NewSlackChannel(webhookURL, channelTag string) (*SlackChannel, error) {
	if err := validateWebhookURL(webhookURL); err != nil {
		return nil, err
	}
	return &SlackChannel{webhookURL: webhookURL, channelTag: channelTag}, nil
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, msg Message) error {
	color := "#439FE0"
	if msg.Event != nil {
		if c, ok := severityColors[msg.Event.Severity.String()]; ok {
			color = c
		}
	}
	text := msg.Title
	if s.channelTag != "" {
		text = fmt.Sprintf("%s %s", s.channelTag, msg.Title)
	}
	payload := &slack.WebhookMessage{
		Text: text,
		Attachments: []slack.Attachment{{
			Color: color,
			Text:  msg.Body,
		}},
	}
	return slack.PostWebhookContext(ctx, s.webhookURL, payload)
}
