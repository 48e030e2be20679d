package decompose

import (
	"fmt"
	"math"
)

// RankPolicy decides what happens when the requested rank is not a valid
// SVD truncation rank.
type RankPolicy int

// Rank policies.
const (
	// RankClamp limits the rank to [1, min(in_features, out_features)].
	// Ranks above the SVD rank are lowered to it, and a requested rank of 0
	// (high ratios on narrow layers) is raised to 1 so that no layer has a
	// zero-width dimension.
	RankClamp RankPolicy = iota
	// RankStrict rejects layers whose requested rank falls outside that range.
	RankStrict
)

// String returns the policy name used in config files and flags.
func (p RankPolicy) String() string {
	switch p {
	case RankClamp:
		return "clamp"
	case RankStrict:
		return "strict"
	default:
		return fmt.Sprintf("RankPolicy(%d)", int(p))
	}
}

// ParseRankPolicy parses "clamp" or "strict".
func ParseRankPolicy(s string) (RankPolicy, error) {
	switch s {
	case "clamp", "":
		return RankClamp, nil
	case "strict":
		return RankStrict, nil
	default:
		return 0, invalidArgument("unknown rank policy %q (want clamp or strict)", s)
	}
}

// RequestedRank returns floor((1 - ratio) * outFeatures).
//
// The rank is derived from the output dimension, not from the SVD rank, and
// uses float64 arithmetic: RequestedRank(10, 0.9) is 0 because
// (1 - 0.9) * 10 is slightly below 1.
func RequestedRank(outFeatures int, ratio float64) int {
	return int((1 - ratio) * float64(outFeatures))
}

// Resolve maps a requested rank to the rank that will be applied, given the
// maximum rank the SVD provides. clamped reports whether the value changed.
func (p RankPolicy) Resolve(requested, maxRank int) (rank int, clamped bool, err error) {
	if requested >= 1 && requested <= maxRank {
		return requested, false, nil
	}
	if p == RankStrict {
		return 0, false, invalidArgument("requested rank %d outside valid range [1, %d]", requested, maxRank)
	}
	return max(1, min(requested, maxRank)), true, nil
}

// ValidateRatio checks that ratio is a finite value in [0, 1).
func ValidateRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio < 0 || ratio >= 1 {
		return invalidArgument("ratio %v outside [0, 1)", ratio)
	}
	return nil
}
