// Package vardiff implements the variable-difficulty algorithm that
// adjusts a channel's nominal hash-rate toward a configured share rate.
// Grounded on internal/slave/stratum.go's checkVardiff: same
// elapsed-window / ratio / clamp / reset-stats shape, generalized from
// a difficulty integer to the SV2 nominal-hash-rate-and-target model
// (spec §4.4) and from a flat +/-variance clamp to the spec's
// asymmetric [1/max_factor, max_factor] clamp plus a hysteresis band.
package vardiff

import "math"

// Config holds the tunables for one vardiff instance. A channel (pool
// side) or downstream (translator side) owns one Config/State pair.
type Config struct {
	SharesPerMinute        float64
	WindowSeconds          float64
	MaxFactor              float64 // default 4.0
	Hysteresis             float64 // default 0.1, in log2 units
	MinIndividualHashrate  float64 // hard floor, independent of any share-difficulty filter
	MaxHashrate            float64 // 0 = no pool-configured ceiling
}

// DefaultConfig returns the spec's stated defaults for every field
// except the rate target and floor, which are per-channel policy.
func DefaultConfig(sharesPerMinute, minIndividualHashrate float64) Config {
	return Config{
		SharesPerMinute:       sharesPerMinute,
		WindowSeconds:         60,
		MaxFactor:             4.0,
		Hysteresis:            0.1,
		MinIndividualHashrate: minIndividualHashrate,
	}
}

// State tracks the rolling share count since the last adjustment. Each
// channel/downstream owns its own State; it is not shared across
// threads except through the caller's own lock (see internal/channel).
type State struct {
	SharesSinceUpdate uint64
	WindowStart       int64 // unix seconds
}

// NewState initializes a State whose window starts at now.
func NewState(nowUnix int64) *State {
	return &State{WindowStart: nowUnix}
}

// RecordShare increments the share counter; call on every accepted
// share before Maybe Adjust checks the window.
func (s *State) RecordShare() {
	s.SharesSinceUpdate++
}

// Result describes the outcome of an adjustment attempt.
type Result struct {
	Adjusted       bool
	NewHashRate    float64
	ElapsedSeconds float64
	Ratio          float64
}

// Adjust runs one vardiff evaluation: if the configured window hasn't
// elapsed it returns Adjusted=false without touching state. Otherwise
// it computes the observed rate, clamps the adjustment ratio, applies
// the hysteresis band, and — if it crosses the band — resets the
// window and returns the new nominal hash-rate. Callers are
// responsible for converting NewHashRate to a target via
// internal/target.HashRateToTarget and emitting SetTarget.
func Adjust(cfg Config, st *State, currentHashRate float64, nowUnix int64) Result {
	elapsed := float64(nowUnix - st.WindowStart)
	if elapsed < cfg.WindowSeconds {
		return Result{Adjusted: false}
	}

	n := float64(st.SharesSinceUpdate)
	observedRate := n * 60.0 / elapsed // shares/minute

	var ratio float64
	if cfg.SharesPerMinute <= 0 {
		ratio = 1.0
	} else {
		ratio = observedRate / cfg.SharesPerMinute
	}

	maxFactor := cfg.MaxFactor
	if maxFactor <= 1.0 {
		maxFactor = 4.0
	}
	minRatio := 1.0 / maxFactor
	if ratio > maxFactor {
		ratio = maxFactor
	} else if ratio < minRatio {
		ratio = minRatio
	}
	if observedRate == 0 {
		// No shares at all in the window: treat as needing a much
		// easier target, same intent as the teacher's "default to
		// halving if no shares" fallback, but clamped the same way.
		ratio = minRatio
	}

	newRate := currentHashRate * ratio
	if newRate < cfg.MinIndividualHashrate {
		newRate = cfg.MinIndividualHashrate
	}
	if cfg.MaxHashrate > 0 && newRate > cfg.MaxHashrate {
		newRate = cfg.MaxHashrate
	}

	hysteresis := cfg.Hysteresis
	if hysteresis <= 0 {
		hysteresis = 0.1
	}
	if currentHashRate <= 0 || newRate <= 0 {
		// Nothing sensible to compare in log-space; treat as a real
		// change if the rates differ.
		if newRate != currentHashRate {
			st.WindowStart = nowUnix
			st.SharesSinceUpdate = 0
		}
		return Result{Adjusted: newRate != currentHashRate, NewHashRate: newRate, ElapsedSeconds: elapsed, Ratio: ratio}
	}
	logDelta := math.Abs(math.Log2(newRate / currentHashRate))
	if logDelta < hysteresis {
		return Result{Adjusted: false, ElapsedSeconds: elapsed, Ratio: ratio}
	}

	st.WindowStart = nowUnix
	st.SharesSinceUpdate = 0
	return Result{Adjusted: true, NewHashRate: newRate, ElapsedSeconds: elapsed, Ratio: ratio}
}
