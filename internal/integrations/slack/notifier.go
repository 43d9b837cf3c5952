package slackbot

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"complaintdesk/internal/domain"
)

type messagePoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// RoutingNotifier posts each routed complaint to the channel configured for
// its routing target. Targets without a channel are skipped.
type RoutingNotifier struct {
	api      messagePoster
	channels func(domain.RoutingTarget) (string, bool)
}

func NewRoutingNotifier(api messagePoster, channels func(domain.RoutingTarget) (string, bool)) *RoutingNotifier {
	return &RoutingNotifier{api: api, channels: channels}
}

func (n *RoutingNotifier) ComplaintRouted(c domain.Complaint) error {
	channel, ok := n.channels(c.RoutingTarget)
	if !ok {
		return nil
	}
	if _, _, err := n.api.PostMessage(channel, slack.MsgOptionText(formatRouted(c), false)); err != nil {
		return fmt.Errorf("post to %s: %w", channel, err)
	}
	log.Printf("complaint routed notice sent id=%s target=%s channel=%s", c.ID, c.RoutingTarget, channel)
	return nil
}
