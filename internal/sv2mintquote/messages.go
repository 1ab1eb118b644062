// Package sv2mintquote implements the mint-quote subprotocol carried on
// the dedicated pool<->mint connection: MintQuoteRequest, Response, and
// Error. Shaped the same way internal/sv2mining's SubmitShares* messages
// are, since both are fixed-field request/response pairs over the same
// codec primitives.
package sv2mintquote

import "github.com/hashpool/hashpool/internal/sv2codec"

// Message type identifiers (spec §6).
const (
	MsgMintQuoteRequest  = 0x80
	MsgMintQuoteResponse = 0x81
	MsgMintQuoteError    = 0x82
)

// Quote status values returned in MintQuoteResponse. The spec leaves
// paid-vs-pending-on-creation an open question resolved by mint policy;
// this domain never assumes Paid on creation.
type Status uint8

const (
	StatusPending Status = 0
	StatusPaid    Status = 1
	StatusExpired Status = 2
)

// MintQuoteRequest asks the mint to create a quote committing to issue
// ehash of Amount to LockingKey, for the share identified by HeaderHash.
type MintQuoteRequest struct {
	Amount      uint64
	Unit        string
	HeaderHash  [32]byte
	Description *string
	LockingKey  [33]byte
}

func (m MintQuoteRequest) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	w.U64(m.Amount)
	if err := w.Str0255(m.Unit); err != nil {
		return nil, err
	}
	w.U256(m.HeaderHash)
	if m.Description == nil {
		w.OptionNone()
	} else {
		w.OptionSome()
		if err := w.Str0255(*m.Description); err != nil {
			return nil, err
		}
	}
	w.CompressedPubKey(m.LockingKey)
	return w.Bytes(), nil
}

func DecodeMintQuoteRequest(payload []byte) (MintQuoteRequest, error) {
	r := sv2codec.NewReader(payload)
	var m MintQuoteRequest
	var err error
	if m.Amount, err = r.U64(); err != nil {
		return m, err
	}
	if m.Unit, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.HeaderHash, err = r.U256(); err != nil {
		return m, err
	}
	present, err := r.OptionPresent()
	if err != nil {
		return m, err
	}
	if present {
		desc, err := r.Str0255()
		if err != nil {
			return m, err
		}
		m.Description = &desc
	}
	if m.LockingKey, err = r.CompressedPubKey(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// MintQuoteResponse is the mint's acceptance of a quote request.
type MintQuoteResponse struct {
	QuoteID string
	Status  Status
	Expiry  uint64
}

func (m MintQuoteResponse) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(32)
	if err := w.Str0255(m.QuoteID); err != nil {
		return nil, err
	}
	w.U8(uint8(m.Status))
	w.U64(m.Expiry)
	return w.Bytes(), nil
}

func DecodeMintQuoteResponse(payload []byte) (MintQuoteResponse, error) {
	r := sv2codec.NewReader(payload)
	var m MintQuoteResponse
	var err error
	if m.QuoteID, err = r.Str0255(); err != nil {
		return m, err
	}
	status, err := r.U8()
	if err != nil {
		return m, err
	}
	m.Status = Status(status)
	if m.Expiry, err = r.U64(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// MintQuoteError rejects a quote request.
type MintQuoteError struct {
	ErrorCode    string
	ErrorMessage string
}

func (m MintQuoteError) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	if err := w.Str0255(m.ErrorCode); err != nil {
		return nil, err
	}
	if err := w.Str0255(m.ErrorMessage); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeMintQuoteError(payload []byte) (MintQuoteError, error) {
	r := sv2codec.NewReader(payload)
	var m MintQuoteError
	var err error
	if m.ErrorCode, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.ErrorMessage, err = r.Str0255(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}
