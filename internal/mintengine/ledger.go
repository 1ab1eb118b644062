// Package mintengine is the mint side's minimal stand-in for the
// external Cashu engine: it accepts the pool's MintQuoteRequest over
// SV2 and tracks quote status for internal/mintapi to serve. Real
// blind-signature issuance, Lightning-invoice settlement, and NUT-04/
// NUT-07 bookkeeping are out of scope; this package is the seam a real
// mint integration would replace.
package mintengine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/hashpool/hashpool/internal/mintapi"
	"github.com/hashpool/hashpool/internal/sv2mintquote"
)

// Ledger assigns quote IDs and remembers their status in memory.
type Ledger struct {
	mu     sync.Mutex
	quotes map[string]mintapi.QuoteRecord
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{quotes: make(map[string]mintapi.QuoteRecord)}
}

// CreateQuote answers a MintQuoteRequest. Every quote is marked paid
// immediately on creation: a mint policy choice substituting for the
// out-of-scope Lightning-invoice settlement path, not a claim that
// real mints must behave this way (spec leaves paid-vs-pending on
// creation as mint policy).
func (l *Ledger) CreateQuote(req sv2mintquote.MintQuoteRequest) (sv2mintquote.MintQuoteResponse, error) {
	id, err := randomQuoteID()
	if err != nil {
		return sv2mintquote.MintQuoteResponse{}, err
	}

	l.mu.Lock()
	l.quotes[id] = mintapi.QuoteRecord{ID: id, Amount: req.Amount, Status: "paid"}
	l.mu.Unlock()

	return sv2mintquote.MintQuoteResponse{QuoteID: id, Status: sv2mintquote.StatusPaid}, nil
}

// PaidQuotes satisfies internal/mintapi.QuoteSource.
func (l *Ledger) PaidQuotes(ctx context.Context) ([]mintapi.QuoteRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]mintapi.QuoteRecord, 0, len(l.quotes))
	for _, q := range l.quotes {
		if q.Status == "paid" {
			out = append(out, q)
		}
	}
	return out, nil
}

func randomQuoteID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
