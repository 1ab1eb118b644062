package channel

import (
	"math/big"

	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/target"
)

// Submission is the channel-agnostic share payload shared by
// SubmitSharesStandard and SubmitSharesExtended: the former carries no
// Extranonce field (the channel's whole prefix is fixed), the latter's
// Extranonce is appended after the channel's prefix.
type Submission struct {
	SequenceNumber uint32
	JobID          uint32
	NTime          uint32
	Nonce          uint32
	Version        uint32
	Extranonce     []byte
}

// Result is the outcome of one Validate call.
type Result struct {
	Accepted      bool
	ErrorCode     string // one of the sv2mining.Err* constants, empty if Accepted
	BlockSolution bool
	Hash          [32]byte // U256, little-endian, as produced by sha256d(header)

	LastSequenceNumber   uint32
	SubmitsAcceptedCount uint32
	SharesSum            uint64
}

func reject(code string) Result {
	return Result{ErrorCode: code}
}

// Validate runs the spec §4.3 share-validation pipeline against an
// already-looked-up channel and job: header reconstruction, duplicate
// detection, target comparison, the independent minimum-share-
// difficulty admissions filter, and block-solution detection.
// Channel lookup (the "unknown-channel" case) happens one level up,
// since it has nothing to do with a specific Channel value.
//
// minimumShareDifficultyBits <= 0 disables the admissions filter.
// networkTarget is the block-solution threshold derived from the
// job's nbits; nil disables block detection (e.g. in tests).
func Validate(ch *Channel, sub Submission, nowUnix int64, clockSkewSeconds uint32, minimumShareDifficultyBits int, networkTarget *big.Int) Result {
	job, ok := ch.Jobs.Get(sub.JobID)
	if !ok {
		return reject(sv2mining.ErrInvalidJobID)
	}

	maxNTime := uint32(nowUnix) + clockSkewSeconds
	if sub.NTime < job.NTimeMin || sub.NTime > maxNTime {
		return reject(sv2mining.ErrStaleShare)
	}

	extranonce := sub.Extranonce
	if ch.Kind == KindStandard {
		extranonce = ch.ExtranoncePrefix
	} else {
		full := make([]byte, 0, len(ch.ExtranoncePrefix)+len(sub.Extranonce))
		full = append(full, ch.ExtranoncePrefix...)
		full = append(full, sub.Extranonce...)
		extranonce = full
	}

	if !job.recordIfNew(ch.ID, job.ID, sub.Nonce, sub.NTime, sub.Version, extranonce) {
		return reject(sv2mining.ErrDuplicateShare)
	}

	coinbaseTxID := buildCoinbase(job.CoinbaseTxPrefix, extranonce, job.CoinbaseTxSuffix)
	root := merkleRoot(coinbaseTxID, job.MerklePath)
	header := buildHeader(sub.Version, job.PrevHash, root, sub.NTime, job.NBits, sub.Nonce)
	hash := sha256d(header)

	hashBig := target.FromU256LE(hash)
	if hashBig.Cmp(ch.Target()) > 0 {
		return reject(sv2mining.ErrDifficultyTooLow)
	}

	if minimumShareDifficultyBits > 0 {
		hashBE := reverse32(hash)
		if target.LeadingZeroBits(hashBE) < minimumShareDifficultyBits {
			return reject(sv2mining.ErrShareDifficultyTooLow)
		}
	}

	blockSolution := networkTarget != nil && hashBig.Cmp(networkTarget) <= 0

	lastSeq, accepted, sum := ch.RecordAccepted(sub.SequenceNumber)

	return Result{
		Accepted:             true,
		BlockSolution:        blockSolution,
		Hash:                 hash,
		LastSequenceNumber:   lastSeq,
		SubmitsAcceptedCount: accepted,
		SharesSum:            sum,
	}
}
