package quotehub

import (
	"math/big"
	"testing"

	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/vardiff"
)

type fakeNotificationSender struct {
	sent []sv2mining.MintQuoteNotification
	err  error
}

func (f *fakeNotificationSender) SendMintQuoteNotification(channelID uint32, n sv2mining.MintQuoteNotification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func newTestChannel(id uint32) *channel.Channel {
	return channel.NewChannel(id, channel.KindStandard, "miner-1", 1000, big.NewInt(1), big.NewInt(1), vardiff.DefaultConfig(1, 100), 0)
}

func TestNotifierDeliversToOpenChannel(t *testing.T) {
	reg := channel.NewRegistry()
	ch := newTestChannel(1)
	reg.Add(ch)

	sender := &fakeNotificationSender{}
	n := NewNotifier(reg, sender)
	n.Notify(PendingQuote{ChannelID: 1, QuoteID: "q1", Amount: 10})

	if len(sender.sent) != 1 || sender.sent[0].QuoteID != "q1" {
		t.Fatalf("expected notification delivered, got %+v", sender.sent)
	}
}

func TestNotifierDropsWhenChannelGone(t *testing.T) {
	reg := channel.NewRegistry()
	sender := &fakeNotificationSender{}
	n := NewNotifier(reg, sender)
	n.Notify(PendingQuote{ChannelID: 99, QuoteID: "q1", Amount: 10})

	if len(sender.sent) != 0 {
		t.Fatalf("expected no notification for a closed channel, got %+v", sender.sent)
	}
}
