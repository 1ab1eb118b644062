package setup

import (
	"fmt"

	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2frame"
)

// Receiver reads the next frame off a connection; Sender writes one.
// Each call site supplies its own closures over its own framing (the
// pool's conn carries an extension_type and a write mutex the simpler
// single-stream callers don't need), so this package stays agnostic to
// how a frame is actually moved and only owns the negotiation logic
// itself.
type Receiver func() (sv2frame.Frame, error)
type Sender func(msgType uint8, payload []byte) error

// AwaitRequest is the responder side of SetupConnection negotiation: it
// reads the peer's SetupConnection, rejects any protocol other than
// allowed with a SetupConnectionError, and otherwise replies
// SetupConnectionSuccess. Grounded on internal/pool/engine.go's
// negotiateSetup.
func AwaitRequest(recv Receiver, send Sender, allowed sv2common.Protocol) (sv2common.SetupConnection, error) {
	frame, err := recv()
	if err != nil {
		return sv2common.SetupConnection{}, fmt.Errorf("setup: read SetupConnection: %w", err)
	}
	if frame.MsgType != sv2common.MsgSetupConnection {
		return sv2common.SetupConnection{}, fmt.Errorf("setup: expected SetupConnection, got msg_type %#x", frame.MsgType)
	}
	req, err := sv2common.DecodeSetupConnection(frame.Payload)
	if err != nil {
		return sv2common.SetupConnection{}, fmt.Errorf("setup: decode SetupConnection: %w", err)
	}
	if req.Protocol != allowed {
		payload, _ := sv2common.SetupConnectionError{ErrorCode: sv2common.ErrProtocolVersionMismatch}.Encode()
		_ = send(sv2common.MsgSetupConnectionError, payload)
		return sv2common.SetupConnection{}, fmt.Errorf("setup: unsupported protocol %d", req.Protocol)
	}
	payload, err := (sv2common.SetupConnectionSuccess{UsedVersion: req.MaxVersion}).Encode()
	if err != nil {
		return sv2common.SetupConnection{}, err
	}
	return req, send(sv2common.MsgSetupConnectionSuccess, payload)
}

// Request is the initiator side: it sends req and blocks for the
// peer's SetupConnectionSuccess or SetupConnectionError. Grounded on
// internal/translator/upstream.go's negotiateSetup.
func Request(send Sender, recv Receiver, req sv2common.SetupConnection) error {
	payload, err := req.Encode()
	if err != nil {
		return err
	}
	if err := send(sv2common.MsgSetupConnection, payload); err != nil {
		return err
	}
	frame, err := recv()
	if err != nil {
		return fmt.Errorf("setup: read SetupConnectionSuccess: %w", err)
	}
	if frame.MsgType == sv2common.MsgSetupConnectionError {
		setupErr, _ := sv2common.DecodeSetupConnectionError(frame.Payload)
		return fmt.Errorf("setup: peer rejected SetupConnection: %s", setupErr.ErrorCode)
	}
	if frame.MsgType != sv2common.MsgSetupConnectionSuccess {
		return fmt.Errorf("setup: expected SetupConnectionSuccess, got msg_type %#x", frame.MsgType)
	}
	return nil
}
