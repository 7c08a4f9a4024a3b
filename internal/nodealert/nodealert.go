// Package nodealert sends best-effort Slack notifications when a node is
// force-suppressed or when every primary in a selection failed
// (handoff_all). It is a supplemented operational concern (SPEC_FULL §11),
// adapted from the teacher's Notifier: nil-client disables posting
// entirely rather than erroring.
package nodealert

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/duskgate/portcullis/internal/ring"
)

// Notifier posts node-health alerts to a Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty, the notifier is a noop —
// callers never need to branch on whether alerting is configured.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this notifier has a usable Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// ForceSuppressed posts an alert that a node was force-suppressed (e.g. an
// Insufficient Storage response), the node-health equivalent of spec
// §4.2's force_suppress.
func (n *Notifier) ForceSuppressed(ctx context.Context, ringName string, node ring.Node, reason string) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack alerting disabled, skipping force-suppress notice",
			"ring", ringName, "ip", node.IP, "device", node.Device)
		return nil
	}

	text := fmt.Sprintf(":warning: node force-suppressed on ring %q: %s:%d/%s (%s)",
		ringName, node.IP, node.Port, node.Device, reason)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting force-suppress alert to slack: %w", err)
	}
	return nil
}

// HandoffAll posts an alert that every primary for a selection failed and
// the iterator fell through entirely to handoffs.
func (n *Notifier) HandoffAll(ctx context.Context, ringName string, partition int) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack alerting disabled, skipping handoff-all notice",
			"ring", ringName, "partition", partition)
		return nil
	}

	text := fmt.Sprintf(":rotating_light: all primaries unavailable for ring %q partition %d",
		ringName, partition)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting handoff-all alert to slack: %w", err)
	}
	return nil
}
