// Package sv2mining implements the mining subprotocol: channel open,
// job distribution, share submission, target updates, and the
// MintQuoteNotification/MintQuoteFailure pool→downstream extension.
// Message shapes follow the wire structs hand-rolled in
// other_examples/042c81c6_..._sv2_conn.go (stratumV2WireOpenStandard-
// MiningChannel, stratumV2WireSubmitSharesStandard, and friends);
// field layout here additionally carries the locking-key binding this
// domain requires at channel open, which that skeleton does not have.
package sv2mining

import (
	"github.com/hashpool/hashpool/internal/sv2codec"
)

// Message type identifiers (spec §6, plus the locking-key extension
// this domain adds to channel-open messages).
const (
	MsgOpenStandardMiningChannel        = 0x10
	MsgOpenStandardMiningChannelSuccess = 0x11
	MsgOpenStandardMiningChannelError   = 0x12
	MsgOpenExtendedMiningChannel        = 0x13
	MsgOpenExtendedMiningChannelSuccess = 0x14
	MsgOpenExtendedMiningChannelError   = 0x15
	MsgUpdateChannel                    = 0x16
	MsgUpdateChannelError               = 0x17
	MsgSetExtranoncePrefix              = 0x19
	MsgSubmitSharesStandard             = 0x1a
	MsgSubmitSharesExtended             = 0x1b
	MsgSubmitSharesSuccess              = 0x1c
	MsgSubmitSharesError                = 0x1d
	MsgNewMiningJob                     = 0x1e
	MsgNewExtendedMiningJob             = 0x1f
	MsgSetNewPrevHash                   = 0x20
	MsgSetTarget                        = 0x21

	// Mining extension, pool -> downstream, carrying quote outcomes.
	MsgMintQuoteNotification = 0xC0
	MsgMintQuoteFailure      = 0xC1
)

// Share error codes (spec §6).
const (
	ErrUnknownChannel          = "unknown-channel"
	ErrInvalidJobID            = "invalid-job-id"
	ErrDuplicateShare          = "duplicate-share"
	ErrDifficultyTooLow        = "difficulty-too-low"
	ErrShareDifficultyTooLow   = "share-difficulty-too-low"
	ErrStaleShare              = "stale-share"
)

func encodeOptionalLockingKey(w *sv2codec.Writer, key *[33]byte) {
	if key == nil {
		w.OptionNone()
		return
	}
	w.OptionSome()
	w.CompressedPubKey(*key)
}

func decodeOptionalLockingKey(r *sv2codec.Reader) (*[33]byte, error) {
	present, err := r.OptionPresent()
	if err != nil || !present {
		return nil, err
	}
	key, err := r.CompressedPubKey()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// OpenStandardMiningChannel requests a new standard channel, optionally
// binding a locking key for ehash issuance.
type OpenStandardMiningChannel struct {
	RequestID       uint32
	UserIdentity    string
	NominalHashRate uint64
	MaxTarget       [32]byte
	LockingKey      *[33]byte
}

func (m OpenStandardMiningChannel) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	w.U32(m.RequestID)
	if err := w.Str0255(m.UserIdentity); err != nil {
		return nil, err
	}
	w.U64(m.NominalHashRate)
	w.U256(m.MaxTarget)
	encodeOptionalLockingKey(w, m.LockingKey)
	return w.Bytes(), nil
}

func DecodeOpenStandardMiningChannel(payload []byte) (OpenStandardMiningChannel, error) {
	r := sv2codec.NewReader(payload)
	var m OpenStandardMiningChannel
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.UserIdentity, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.NominalHashRate, err = r.U64(); err != nil {
		return m, err
	}
	if m.MaxTarget, err = r.U256(); err != nil {
		return m, err
	}
	if m.LockingKey, err = decodeOptionalLockingKey(r); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// OpenStandardMiningChannelSuccess grants the channel and its initial
// target and extranonce prefix.
type OpenStandardMiningChannelSuccess struct {
	RequestID         uint32
	ChannelID         uint32
	Target            [32]byte
	ExtranoncePrefix  []byte
	GroupChannelID    uint32
}

func (m OpenStandardMiningChannelSuccess) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	w.U32(m.RequestID)
	w.U32(m.ChannelID)
	w.U256(m.Target)
	if err := w.B0_32(m.ExtranoncePrefix); err != nil {
		return nil, err
	}
	w.U32(m.GroupChannelID)
	return w.Bytes(), nil
}

func DecodeOpenStandardMiningChannelSuccess(payload []byte) (OpenStandardMiningChannelSuccess, error) {
	r := sv2codec.NewReader(payload)
	var m OpenStandardMiningChannelSuccess
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Target, err = r.U256(); err != nil {
		return m, err
	}
	if m.ExtranoncePrefix, err = r.B0_32(); err != nil {
		return m, err
	}
	if m.GroupChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// OpenMiningChannelError reports channel-open failure; shared shape for
// both standard and extended variants.
type OpenMiningChannelError struct {
	RequestID uint32
	ErrorCode string
}

func (m OpenMiningChannelError) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(16)
	w.U32(m.RequestID)
	if err := w.Str0255(m.ErrorCode); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeOpenMiningChannelError(payload []byte) (OpenMiningChannelError, error) {
	r := sv2codec.NewReader(payload)
	var m OpenMiningChannelError
	var err error
	if m.RequestID, err = r.U32(); err != nil {
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

// OpenExtendedMiningChannel requests a channel where the miner also
// varies an extranonce2 of negotiated length.
type OpenExtendedMiningChannel struct {
	RequestID         uint32
	UserIdentity       string
	NominalHashRate    uint64
	MaxTarget          [32]byte
	MinExtranonceSize  uint16
	LockingKey         *[33]byte
}

func (m OpenExtendedMiningChannel) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	w.U32(m.RequestID)
	if err := w.Str0255(m.UserIdentity); err != nil {
		return nil, err
	}
	w.U64(m.NominalHashRate)
	w.U256(m.MaxTarget)
	w.U16(m.MinExtranonceSize)
	encodeOptionalLockingKey(w, m.LockingKey)
	return w.Bytes(), nil
}

func DecodeOpenExtendedMiningChannel(payload []byte) (OpenExtendedMiningChannel, error) {
	r := sv2codec.NewReader(payload)
	var m OpenExtendedMiningChannel
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.UserIdentity, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.NominalHashRate, err = r.U64(); err != nil {
		return m, err
	}
	if m.MaxTarget, err = r.U256(); err != nil {
		return m, err
	}
	if m.MinExtranonceSize, err = r.U16(); err != nil {
		return m, err
	}
	if m.LockingKey, err = decodeOptionalLockingKey(r); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// OpenExtendedMiningChannelSuccess grants the extended channel.
type OpenExtendedMiningChannelSuccess struct {
	RequestID        uint32
	ChannelID        uint32
	Target           [32]byte
	ExtranonceSize   uint16
	ExtranoncePrefix []byte
	GroupChannelID   uint32
}

func (m OpenExtendedMiningChannelSuccess) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(64)
	w.U32(m.RequestID)
	w.U32(m.ChannelID)
	w.U256(m.Target)
	w.U16(m.ExtranonceSize)
	if err := w.B0_32(m.ExtranoncePrefix); err != nil {
		return nil, err
	}
	w.U32(m.GroupChannelID)
	return w.Bytes(), nil
}

func DecodeOpenExtendedMiningChannelSuccess(payload []byte) (OpenExtendedMiningChannelSuccess, error) {
	r := sv2codec.NewReader(payload)
	var m OpenExtendedMiningChannelSuccess
	var err error
	if m.RequestID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Target, err = r.U256(); err != nil {
		return m, err
	}
	if m.ExtranonceSize, err = r.U16(); err != nil {
		return m, err
	}
	if m.ExtranoncePrefix, err = r.B0_32(); err != nil {
		return m, err
	}
	if m.GroupChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// UpdateChannel reports an updated nominal hash-rate for a channel,
// sent by the translator summing (aggregated mode) or per-channel
// (non-aggregated mode) downstream hash-rates.
type UpdateChannel struct {
	ChannelID       uint32
	NominalHashRate uint64
	MaximumTarget   [32]byte
}

func (m UpdateChannel) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(48)
	w.U32(m.ChannelID)
	w.U64(m.NominalHashRate)
	w.U256(m.MaximumTarget)
	return w.Bytes(), nil
}

func DecodeUpdateChannel(payload []byte) (UpdateChannel, error) {
	r := sv2codec.NewReader(payload)
	var m UpdateChannel
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.NominalHashRate, err = r.U64(); err != nil {
		return m, err
	}
	if m.MaximumTarget, err = r.U256(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SetExtranoncePrefix re-assigns a channel's extranonce prefix.
type SetExtranoncePrefix struct {
	ChannelID        uint32
	ExtranoncePrefix []byte
}

func (m SetExtranoncePrefix) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(40)
	w.U32(m.ChannelID)
	if err := w.B0_32(m.ExtranoncePrefix); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeSetExtranoncePrefix(payload []byte) (SetExtranoncePrefix, error) {
	r := sv2codec.NewReader(payload)
	var m SetExtranoncePrefix
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.ExtranoncePrefix, err = r.B0_32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SubmitSharesStandard is a share submission on a standard channel: the
// extranonce is implicit (the channel's fixed prefix).
type SubmitSharesStandard struct {
	ChannelID      uint32
	SequenceNumber uint32
	JobID          uint32
	NTime          uint32
	Nonce          uint32
	Version        uint32
}

func (m SubmitSharesStandard) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(24)
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	w.U32(m.JobID)
	w.U32(m.NTime)
	w.U32(m.Nonce)
	w.U32(m.Version)
	return w.Bytes(), nil
}

func DecodeSubmitSharesStandard(payload []byte) (SubmitSharesStandard, error) {
	r := sv2codec.NewReader(payload)
	var m SubmitSharesStandard
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.NTime, err = r.U32(); err != nil {
		return m, err
	}
	if m.Nonce, err = r.U32(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SubmitSharesExtended additionally carries the miner-varied extranonce2.
type SubmitSharesExtended struct {
	ChannelID      uint32
	SequenceNumber uint32
	JobID          uint32
	NTime          uint32
	Nonce          uint32
	Version        uint32
	Extranonce     []byte
}

func (m SubmitSharesExtended) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(32)
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	w.U32(m.JobID)
	w.U32(m.NTime)
	w.U32(m.Nonce)
	w.U32(m.Version)
	if err := w.B0_32(m.Extranonce); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeSubmitSharesExtended(payload []byte) (SubmitSharesExtended, error) {
	r := sv2codec.NewReader(payload)
	var m SubmitSharesExtended
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.NTime, err = r.U32(); err != nil {
		return m, err
	}
	if m.Nonce, err = r.U32(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if m.Extranonce, err = r.B0_32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SubmitSharesSuccess acknowledges one or more accepted shares with
// cumulative, channel-lifetime counters.
type SubmitSharesSuccess struct {
	ChannelID               uint32
	LastSequenceNumber      uint32
	NewSubmitsAcceptedCount uint32
	NewSharesSum            uint64
}

func (m SubmitSharesSuccess) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(20)
	w.U32(m.ChannelID)
	w.U32(m.LastSequenceNumber)
	w.U32(m.NewSubmitsAcceptedCount)
	w.U64(m.NewSharesSum)
	return w.Bytes(), nil
}

func DecodeSubmitSharesSuccess(payload []byte) (SubmitSharesSuccess, error) {
	r := sv2codec.NewReader(payload)
	var m SubmitSharesSuccess
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.LastSequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.NewSubmitsAcceptedCount, err = r.U32(); err != nil {
		return m, err
	}
	if m.NewSharesSum, err = r.U64(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SubmitSharesError rejects a single share submission.
type SubmitSharesError struct {
	ChannelID      uint32
	SequenceNumber uint32
	ErrorCode      string
}

func (m SubmitSharesError) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(24)
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	if err := w.Str0255(m.ErrorCode); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeSubmitSharesError(payload []byte) (SubmitSharesError, error) {
	r := sv2codec.NewReader(payload)
	var m SubmitSharesError
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
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

// NewMiningJob announces a job on a standard channel; the merkle root
// is already resolved pool-side since a standard channel's extranonce
// is fixed.
type NewMiningJob struct {
	ChannelID  uint32
	JobID      uint32
	Version    uint32
	MerkleRoot [32]byte
}

func (m NewMiningJob) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(48)
	w.U32(m.ChannelID)
	w.U32(m.JobID)
	w.U32(m.Version)
	w.U256(m.MerkleRoot)
	return w.Bytes(), nil
}

func DecodeNewMiningJob(payload []byte) (NewMiningJob, error) {
	r := sv2codec.NewReader(payload)
	var m NewMiningJob
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if m.MerkleRoot, err = r.U256(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// NewExtendedMiningJob announces a job on an extended channel. The
// merkle root is left for the receiver to compute from the coinbase
// parts plus its own extranonce2, since extended channels vary the
// extranonce per miner.
type NewExtendedMiningJob struct {
	ChannelID             uint32
	JobID                 uint32
	FutureJob             bool
	Version               uint32
	VersionRollingAllowed bool
	MerklePath            [][32]byte
	CoinbaseTxPrefix      []byte
	CoinbaseTxSuffix      []byte
}

func (m NewExtendedMiningJob) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(128)
	w.U32(m.ChannelID)
	w.U32(m.JobID)
	w.Bool(m.FutureJob)
	w.U32(m.Version)
	w.Bool(m.VersionRollingAllowed)
	if err := sv2codec.Seq0_255(w, m.MerklePath, func(w *sv2codec.Writer, h [32]byte) error {
		w.U256(h)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := w.B0_64k(m.CoinbaseTxPrefix); err != nil {
		return nil, err
	}
	if err := w.B0_64k(m.CoinbaseTxSuffix); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeNewExtendedMiningJob(payload []byte) (NewExtendedMiningJob, error) {
	r := sv2codec.NewReader(payload)
	var m NewExtendedMiningJob
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.FutureJob, err = r.Bool(); err != nil {
		return m, err
	}
	if m.Version, err = r.U32(); err != nil {
		return m, err
	}
	if m.VersionRollingAllowed, err = r.Bool(); err != nil {
		return m, err
	}
	if m.MerklePath, err = sv2codec.Seq0_255(r, func(r *sv2codec.Reader) ([32]byte, error) {
		return r.U256()
	}); err != nil {
		return m, err
	}
	if m.CoinbaseTxPrefix, err = r.B0_64k(); err != nil {
		return m, err
	}
	if m.CoinbaseTxSuffix, err = r.B0_64k(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SetNewPrevHash announces a new chain tip; within a single channel it
// is observed before any NewMiningJob/NewExtendedMiningJob that
// references its JobID.
type SetNewPrevHash struct {
	ChannelID uint32
	JobID     uint32
	PrevHash  [32]byte
	MinNTime  uint32
	NBits     uint32
}

func (m SetNewPrevHash) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(48)
	w.U32(m.ChannelID)
	w.U32(m.JobID)
	w.U256(m.PrevHash)
	w.U32(m.MinNTime)
	w.U32(m.NBits)
	return w.Bytes(), nil
}

func DecodeSetNewPrevHash(payload []byte) (SetNewPrevHash, error) {
	r := sv2codec.NewReader(payload)
	var m SetNewPrevHash
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.JobID, err = r.U32(); err != nil {
		return m, err
	}
	if m.PrevHash, err = r.U256(); err != nil {
		return m, err
	}
	if m.MinNTime, err = r.U32(); err != nil {
		return m, err
	}
	if m.NBits, err = r.U32(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// SetTarget updates a channel's maximum target, emitted by vardiff.
type SetTarget struct {
	ChannelID     uint32
	MaximumTarget [32]byte
}

func (m SetTarget) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(40)
	w.U32(m.ChannelID)
	w.U256(m.MaximumTarget)
	return w.Bytes(), nil
}

func DecodeSetTarget(payload []byte) (SetTarget, error) {
	r := sv2codec.NewReader(payload)
	var m SetTarget
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.MaximumTarget, err = r.U256(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// MintQuoteNotification delivers a paid quote back to the channel that
// earned it. SequenceNumber carries the share submission's original
// sequence_number (the dispatch correlation key the pool's quote hub
// already tracks a PendingQuote by) so a translator multiplexing many
// downstream miners behind one aggregated upstream channel can route
// the notification to the miner that submitted that specific share,
// not just to "some miner on this channel".
type MintQuoteNotification struct {
	ChannelID      uint32
	SequenceNumber uint32
	QuoteID        string
	Amount         uint64
}

func (m MintQuoteNotification) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(40)
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	if err := w.Str0255(m.QuoteID); err != nil {
		return nil, err
	}
	w.U64(m.Amount)
	return w.Bytes(), nil
}

func DecodeMintQuoteNotification(payload []byte) (MintQuoteNotification, error) {
	r := sv2codec.NewReader(payload)
	var m MintQuoteNotification
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
		return m, err
	}
	if m.QuoteID, err = r.Str0255(); err != nil {
		return m, err
	}
	if m.Amount, err = r.U64(); err != nil {
		return m, err
	}
	if !r.Done() {
		return m, sv2codec.ErrTrailingBytes
	}
	return m, nil
}

// MintQuoteFailure reports that a dispatched quote could not be
// completed; it never affects share acceptance, which has already
// happened by the time this is sent.
type MintQuoteFailure struct {
	ChannelID      uint32
	SequenceNumber uint32
	ErrorCode      string
}

func (m MintQuoteFailure) Encode() ([]byte, error) {
	w := sv2codec.NewWriter(24)
	w.U32(m.ChannelID)
	w.U32(m.SequenceNumber)
	if err := w.Str0255(m.ErrorCode); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func DecodeMintQuoteFailure(payload []byte) (MintQuoteFailure, error) {
	r := sv2codec.NewReader(payload)
	var m MintQuoteFailure
	var err error
	if m.ChannelID, err = r.U32(); err != nil {
		return m, err
	}
	if m.SequenceNumber, err = r.U32(); err != nil {
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
