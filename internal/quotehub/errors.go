package quotehub

import (
	"errors"
	"fmt"
)

// ErrMintDispatcherUnavailable is returned by Dispatch when the
// dispatcher's worker loop is not running (Start was never called, or
// Stop already ran).
var ErrMintDispatcherUnavailable = errors.New("quotehub: mint dispatcher unavailable")

// MissingLockingKeyError reports a dispatch attempt for a channel that
// never negotiated a locking key.
type MissingLockingKeyError struct {
	ChannelID uint32
}

func (e *MissingLockingKeyError) Error() string {
	return fmt.Sprintf("quotehub: channel %d has no locking key", e.ChannelID)
}

// InvalidLockingKeyFormatError reports a locking key of the wrong byte
// length (compressed secp256k1 keys are always 33 bytes).
type InvalidLockingKeyFormatError struct {
	ChannelID uint32
	Length    int
}

func (e *InvalidLockingKeyFormatError) Error() string {
	return fmt.Sprintf("quotehub: channel %d locking key has invalid length %d, want 33", e.ChannelID, e.Length)
}

// InvalidLockingKeyError reports a 33-byte value that is not a valid
// compressed point on the secp256k1 curve.
type InvalidLockingKeyError struct {
	ChannelID uint32
	Reason    string
}

func (e *InvalidLockingKeyError) Error() string {
	return fmt.Sprintf("quotehub: channel %d locking key is invalid: %s", e.ChannelID, e.Reason)
}

// QuoteDispatchFailedError wraps a failure sending a quote request to
// the mint. It is always non-fatal: the share that triggered it has
// already been accepted and acknowledged.
type QuoteDispatchFailedError struct {
	Reason string
}

func (e *QuoteDispatchFailedError) Error() string {
	return fmt.Sprintf("quotehub: quote dispatch failed: %s", e.Reason)
}
