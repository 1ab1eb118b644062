package pool

import (
	"fmt"

	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/sv2mining"
)

// SendMintQuoteNotification implements quotehub.NotificationSender by
// routing the notification to whichever connection currently owns
// channelID.
func (e *Engine) SendMintQuoteNotification(channelID uint32, n sv2mining.MintQuoteNotification) error {
	c := e.connFor(channelID)
	if c == nil {
		return fmt.Errorf("pool: no connection owns channel %d", channelID)
	}
	out, err := n.Encode()
	if err != nil {
		return err
	}
	return c.send(0, sv2mining.MsgMintQuoteNotification, out)
}

// Channels exposes the engine's registry as a quotehub.ChannelLookup,
// since *channel.Registry already satisfies that interface directly.
func (e *Engine) Channels() *channel.Registry {
	return e.registry
}
