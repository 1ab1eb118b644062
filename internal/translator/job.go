package translator

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/hashpool/hashpool/internal/channel"
)

// jobIDHex renders an upstream SV2 job_id as the 8-hex-char string SV1
// carries as its own job_id, round-tripped back to a uint32 by
// parseJobID when a downstream submits against it.
func jobIDHex(id uint32) string {
	return fmt.Sprintf("%08x", id)
}

func parseJobID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("translator: invalid job_id %q: %w", s, err)
	}
	return uint32(n), nil
}

// sv1PrevHashHex renders a job's PrevHash (carried internally in
// display/big-endian order, same as channel.Job.PrevHash) in the byte
// order classic SV1 pools put on the wire for mining.notify's prevhash
// field: each 32-bit word of the field byte-swapped, then the whole
// field reversed. Equivalent to the well-known stratum
// "swap32-then-reverse" transform over the raw header bytes.
func sv1PrevHashHex(prevHash [32]byte) string {
	var swapped [32]byte
	for i := 0; i < 8; i++ {
		swapped[i*4+0] = prevHash[i*4+3]
		swapped[i*4+1] = prevHash[i*4+2]
		swapped[i*4+2] = prevHash[i*4+1]
		swapped[i*4+3] = prevHash[i*4+0]
	}
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = swapped[31-i]
	}
	return hex.EncodeToString(out[:])
}

// merkleBranchHex renders a job's merkle path as the hex array SV1's
// mining.notify carries, in path order.
func merkleBranchHex(path [][32]byte) []string {
	out := make([]string, len(path))
	for i, h := range path {
		out[i] = hex.EncodeToString(h[:])
	}
	return out
}

// u32Hex renders a uint32 as the 8-char lowercase hex SV1 uses for
// version/nbits/ntime fields.
func u32Hex(v uint32) string {
	return fmt.Sprintf("%08x", v)
}

// notifyParams builds the params array for one mining.notify call from
// an upstream job and its governing prev-hash/ntime/nbits, per the
// standard Bitcoin SV1 wire shape:
// [job_id, prevhash, coinb1, coinb2, merkle_branch[], version, nbits, ntime, clean_jobs].
func notifyParams(j *channel.Job, cleanJobs bool) []interface{} {
	return []interface{}{
		jobIDHex(j.ID),
		sv1PrevHashHex(j.PrevHash),
		hex.EncodeToString(j.CoinbaseTxPrefix),
		hex.EncodeToString(j.CoinbaseTxSuffix),
		merkleBranchHex(j.MerklePath),
		u32Hex(j.Version),
		u32Hex(j.NBits),
		u32Hex(j.NTimeMin),
		cleanJobs,
	}
}
