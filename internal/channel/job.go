package channel

import (
	"fmt"
	"sync"
)

// Job is one channel's unit of work: the fields needed to reconstruct
// a block header from a miner's submission. Standard channels fix
// Extranonce to the channel's allocated prefix; extended channels
// leave ExtranonceSize bytes for the miner to vary, appended after
// CoinbaseTxPrefix.
type Job struct {
	ID        uint32
	Version   uint32
	PrevHash  [32]byte // big-endian; buildHeader reverses it into the header's little-endian field order
	NTimeMin  uint32
	NBits     uint32
	FutureJob bool

	MerklePath       [][32]byte
	CoinbaseTxPrefix []byte
	CoinbaseTxSuffix []byte

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewJob builds a Job from the fields a template/job-distribution
// source supplies. The duplicate-share set starts empty.
func NewJob(id, version uint32, prevHash [32]byte, ntimeMin, nbits uint32, futureJob bool, merklePath [][32]byte, coinbasePrefix, coinbaseSuffix []byte) *Job {
	return &Job{
		ID:               id,
		Version:          version,
		PrevHash:         prevHash,
		NTimeMin:         ntimeMin,
		NBits:            nbits,
		FutureJob:        futureJob,
		MerklePath:       merklePath,
		CoinbaseTxPrefix: coinbasePrefix,
		CoinbaseTxSuffix: coinbaseSuffix,
	}
}

// shareKey renders the spec's duplicate-detection tuple
// (channel_id, job_id, nonce, extranonce, ntime, version) as a map
// key. job_id and channel_id are implicit in which Job/channel this is
// called on, but are included anyway so a key collision across two
// different jobs sharing an ID (e.g. after a job-store wraparound)
// can never be mistaken for the same share.
func shareKey(channelID, jobID, nonce, ntime, version uint32, extranonce []byte) string {
	return fmt.Sprintf("%d|%d|%d|%d|%d|%x", channelID, jobID, nonce, ntime, version, extranonce)
}

// recordIfNew reports whether this exact share tuple has been seen
// before on this job. It atomically marks the tuple as seen.
func (j *Job) recordIfNew(channelID, jobID, nonce, ntime, version uint32, extranonce []byte) bool {
	key := shareKey(channelID, jobID, nonce, ntime, version, extranonce)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seen == nil {
		j.seen = make(map[string]struct{})
	}
	if _, dup := j.seen[key]; dup {
		return false
	}
	j.seen[key] = struct{}{}
	return true
}

// JobStore holds a channel's live jobs, keyed by job_id. One writer
// (the upstream/job-distribution loop) and many readers (share
// validation) share it, matching the single-writer invariant called
// for in the concurrency model.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uint32]*Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uint32]*Job)}
}

func (s *JobStore) Put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

func (s *JobStore) Get(id uint32) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *JobStore) Delete(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Prune drops every job whose ID is not in keep, used when the pool
// retires jobs for a retired chain tip.
func (s *JobStore) Prune(keep map[uint32]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.jobs {
		if _, ok := keep[id]; !ok {
			delete(s.jobs, id)
		}
	}
}
