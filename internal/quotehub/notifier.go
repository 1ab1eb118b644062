package quotehub

import (
	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/util"
)

// ChannelLookup reports whether a channel is still open. Satisfied by
// *internal/channel.Registry.
type ChannelLookup interface {
	Get(channelID uint32) (*channel.Channel, bool)
}

// NotificationSender delivers a MintQuoteNotification on the
// connection that owns channelID.
type NotificationSender interface {
	SendMintQuoteNotification(channelID uint32, n sv2mining.MintQuoteNotification) error
}

// Notifier routes a paid quote back to the channel that earned it,
// dropping and logging if the channel has since closed.
type Notifier struct {
	lookup ChannelLookup
	sender NotificationSender
}

func NewNotifier(lookup ChannelLookup, sender NotificationSender) *Notifier {
	return &Notifier{lookup: lookup, sender: sender}
}

func (n *Notifier) Notify(p PendingQuote) {
	if _, ok := n.lookup.Get(p.ChannelID); !ok {
		util.Warnf("quotehub: dropping paid quote %s, channel %d no longer open", p.QuoteID, p.ChannelID)
		return
	}
	notification := sv2mining.MintQuoteNotification{
		ChannelID:      p.ChannelID,
		SequenceNumber: p.SequenceNumber,
		QuoteID:        p.QuoteID,
		Amount:         p.Amount,
	}
	if err := n.sender.SendMintQuoteNotification(p.ChannelID, notification); err != nil {
		util.Warnf("quotehub: failed to deliver mint quote notification for channel %d: %v", p.ChannelID, err)
	}
}
