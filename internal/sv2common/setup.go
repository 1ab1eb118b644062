// Package sv2common implements the SV2 common subprotocol messages
// (SetupConnection and its responses) shared by every role: pool,
// translator, and mint. Grounded on the handleSetupConnection shape in
// the M45-goPool sv2Conn skeleton, generalized from that single
// mining-only handler into symmetric encode/decode for both sides of
// the exchange.
package sv2common

import (
	"github.com/hashpool/hashpool/internal/sv2codec"
)

// Message type identifiers for the common subprotocol (spec §6).
const (
	MsgSetupConnection        = 0x00
	MsgSetupConnectionSuccess = 0x01
	MsgSetupConnectionError   = 0x02
)

// Protocol identifies which SV2 subprotocol a connection negotiates.
type Protocol uint8

const (
	ProtocolMining              Protocol = 0
	ProtocolJobDeclaration      Protocol = 1
	ProtocolTemplateDistribution Protocol = 2
	ProtocolMintQuote           Protocol = 3
)

// Flag bits for SetupConnection.Flags. These bit positions are
// authoritative per the wire specification; swapping them is a
// protocol-breaking bug, not a style choice.
const (
	FlagRequiresStandardJobs  uint32 = 1 << 0
	FlagRequiresWorkSelection uint32 = 1 << 1
	FlagRequiresVersionRolling uint32 = 1 << 2
)

// HasWorkSelection reports whether flags requests work selection
// (job declaration) rather than standard pool-assigned jobs.
func HasWorkSelection(flags uint32) bool {
	return flags&FlagRequiresWorkSelection != 0
}

// HasVersionRolling reports whether flags requests version-rolling.
func HasVersionRolling(flags uint32) bool {
	return flags&FlagRequiresVersionRolling != 0
}

// HasStandardJobs reports whether flags requires standard (non-custom)
// jobs only.
func HasStandardJobs(flags uint32) bool {
	return flags&FlagRequiresStandardJobs != 0
}

// SetupConnection is the first frame sent by the initiator on a new
// connection, before any subprotocol-specific message.
type SetupConnection struct {
	Protocol       Protocol
	MinVersion     uint16
	MaxVersion     uint16
	Flags          uint32
	EndpointHost   string
	EndpointPort   uint16
	VendorName     string
	HardwareVersion string
	FirmwareVersion string
	DeviceID       string
}

// Encode serializes m per the SV2 SetupConnection schema.
func (m SetupConnection) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	w.U8(uint8(m.Protocol))
	w.U16(m.MinVersion)
	w.U16(m.MaxVersion)
	w.U32(m.Flags)
	if err := w.Str0255(m.EndpointHost); err != nil {
		return nil, err
	}
	w.U16(m.EndpointPort)
	if err := w.Str0255(m.VendorName); err != nil {
		return nil, err
	}
	if err := w.Str0255(m.HardwareVersion); err != nil {
		return nil, err
	}
	if err := w.Str0255(m.FirmwareVersion); err != nil {
		return nil, err
	}
	if err := w.Str0255(m.DeviceID); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeSetupConnection parses a SetupConnection payload.
func DecodeSetupConnection(payload []byte) (SetupConnection, error) {
	r := sv2codec.NewReader(payload)
	var m SetupConnection

	proto, err := r.U8()
	if err != nil {
		return m, err
	}
	m.Protocol = Protocol(proto)

	if m.MinVersion, err = r.U16(); err != nil {
		return m, err
	}
	if m.MaxVersion, err = r.U16(); err != nil {
		return m, err
	}
	if m.Flags, err = r.U32(); err != nil {
		return m, err
	}
	if m.EndpointHost, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.EndpointPort, err = r.U16(); err != nil {
		return m, err
	}
	if m.VendorName, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.HardwareVersion, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.FirmwareVersion, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.DeviceID, err = r.Str0255(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SetupConnectionSuccess is the responder's acceptance reply.
type SetupConnectionSuccess struct {
	UsedVersion uint16
	Flags       uint32
}

// Encode serializes m.
func (m SetupConnectionSuccess) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(6)
	w.U16(m.UsedVersion)
	w.U32(m.Flags)
	return w.Bytes(), nil
}

// DecodeSetupConnectionSuccess parses a SetupConnectionSuccess payload.
func DecodeSetupConnectionSuccess(payload []byte) (SetupConnectionSuccess, error) {
	r := sv2codec.NewReader(payload)
	var m SetupConnectionSuccess
	var err error
	if m.UsedVersion, err = r.U16(); err != nil {
		return m, err
	}
	if m.Flags, err = r.U32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SetupConnectionError is the responder's rejection reply.
type SetupConnectionError struct {
	Flags     uint32
	ErrorCode string
}

// Known setup error codes (spec §6).
const (
	ErrUnsupportedFeatureFlags = "unsupported-feature-flags"
	ErrProtocolVersionMismatch = "protocol-version-mismatch"
)

// Encode serializes m.
func (m SetupConnectionError) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(16)
	w.U32(m.Flags)
	if err := w.Str0255(m.ErrorCode); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeSetupConnectionError parses a SetupConnectionError payload.
func DecodeSetupConnectionError(payload []byte) (SetupConnectionError, error) {
	r := sv2codec.NewReader(payload)
	var m SetupConnectionError
	var err error
	if m.Flags, err = r.U32(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.Str0255(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}
