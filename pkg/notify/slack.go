package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier sends alert notifications to a Slack channel via the
// slack-go SDK. Alerts post standalone rather than threading onto a
// prior message.
type SlackNotifier struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

// NewSlackNotifier builds a SlackNotifier bound to one bot token and
// default channel ID.
func NewSlackNotifier(token, channelID string) *SlackNotifier {
	return &SlackNotifier{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    slog.Default().With("component", "slack-notifier"),
	}
}

// Send posts req.Body as a Slack message, to req.Channel if set or the
// notifier's default channel otherwise.
func (s *SlackNotifier) Send(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	channel := s.channelID
	if req.Channel != "" {
		channel = req.Channel
	}

	text := req.Body
	if req.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", req.Subject, req.Body)
	}

	_, ts, err := s.api.PostMessageContext(ctx, channel, goslack.MsgOptionText(text, false))
	if err != nil {
		s.logger.Warn("slack notification failed", "channel", channel, "error", err)
		return Response{}, fmt.Errorf("notify: slack chat.postMessage failed: %w", err)
	}
	return Response{OK: true, ProviderResponse: ts}, nil
}
