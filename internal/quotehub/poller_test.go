package quotehub

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/mintclient"
	"github.com/hashpool/hashpool/internal/vardiff"
)

type fakeQuoteSource struct {
	quotes []mintclient.Quote
}

func (f *fakeQuoteSource) PaidQuotes(ctx context.Context) ([]mintclient.Quote, error) {
	return f.quotes, nil
}

func TestPollerMatchesPendingAndNotifies(t *testing.T) {
	sender := &fakeSender{quoteID: "q1"}
	d := NewDispatcher(sender, 10)
	d.Start(context.Background())
	defer d.Stop()

	if err := d.Dispatch(1, 1, [32]byte{}, testLockingKey(t), 1, "ehash"); err != nil {
		t.Fatal(err)
	}
	waitForPending(t, d)

	reg := channel.NewRegistry()
	reg.Add(channel.NewChannel(1, channel.KindStandard, "miner-1", 1000, big.NewInt(1), big.NewInt(1), vardiff.DefaultConfig(1, 100), 0))
	notifSender := &fakeNotificationSender{}
	notifier := NewNotifier(reg, notifSender)

	source := &fakeQuoteSource{quotes: []mintclient.Quote{{ID: "q1", Amount: 21, Status: "paid"}}}
	p := NewPoller(source, d, notifier, 0)
	p.PollOnce(context.Background())

	if len(notifSender.sent) != 1 || notifSender.sent[0].QuoteID != "q1" || notifSender.sent[0].Amount != 21 {
		t.Fatalf("expected notification for q1 with amount 21, got %+v", notifSender.sent)
	}
	if d.PendingCount() != 0 {
		t.Fatalf("expected pending quote to be consumed, got count %d", d.PendingCount())
	}
}

func TestPollerIgnoresUnknownQuotes(t *testing.T) {
	sender := &fakeSender{quoteID: "q1"}
	d := NewDispatcher(sender, 10)
	d.Start(context.Background())
	defer d.Stop()

	reg := channel.NewRegistry()
	notifier := NewNotifier(reg, &fakeNotificationSender{})
	source := &fakeQuoteSource{quotes: []mintclient.Quote{{ID: "unknown", Amount: 1, Status: "paid"}}}
	p := NewPoller(source, d, notifier, 0)
	p.PollOnce(context.Background())
}

func waitForPending(t *testing.T, d *Dispatcher) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if d.PendingCount() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for pending quote")
}
