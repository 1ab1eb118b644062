// Package pool implements the pool-side SV2 engine: the Noise-encrypted
// connection loop, channel registry, share-validation wiring, and quote
// dispatch. Grounded on internal/master/master.go's Master (ctx/cancel/wg
// lifecycle, a long-lived coordinator spawning one goroutine per
// concern) and on other_examples's M45-goPool sv2Conn (per-connection
// handshake, SetupConnection negotiation, and mining-message dispatch).
package pool

import (
	"context"
	"math/big"

	"github.com/hashpool/hashpool/internal/channel"
)

// Template is the data the pool needs to build and issue a job: a
// partially-built block plus the network target shares must beat to be
// a block solution. Producing and refreshing templates (normally by
// polling a Bitcoin full node for getblocktemplate-equivalent data) is
// out of scope; TemplateProvider is the seam a real node integration
// would implement.
type Template struct {
	JobID            uint32
	Version          uint32
	PrevHash         [32]byte
	NTimeMin         uint32
	NBits            uint32
	FutureJob        bool
	MerklePath       [][32]byte
	CoinbaseTxPrefix []byte
	CoinbaseTxSuffix []byte
	NetworkTarget    *big.Int
}

// ToJob converts a Template into the channel package's Job bookkeeping
// type, so share validation and job issuance share one representation.
func (t Template) ToJob() *channel.Job {
	return channel.NewJob(t.JobID, t.Version, t.PrevHash, t.NTimeMin, t.NBits, t.FutureJob, t.MerklePath, t.CoinbaseTxPrefix, t.CoinbaseTxSuffix)
}

// TemplateProvider supplies the current block template and accepts
// block solutions found by the share-validation pipeline. The engine
// calls Current once at startup and afterwards uses each template
// received from Updates.
type TemplateProvider interface {
	Current() Template
	Updates() <-chan Template
	SubmitBlockSolution(ctx context.Context, headerBytes []byte, tmpl Template) error
}
