// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package detection

// AnomalyTier is the ordinal severity of an implausible location/time jump.
// It is derived per evaluation and never persisted directly.
type AnomalyTier int

const (
	// TierNormal means the movement is plausible; no suspicion accrues.
	TierNormal AnomalyTier = iota

	// TierWatch accumulates suspicion without immediate action.
	TierWatch

	// TierStrong indicates strong suspicion (speeds no ground vehicle reaches).
	TierStrong

	// TierBlock indicates physically impossible movement.
	TierBlock
)

// Tiers lists every tier in ordinal order. Config loading uses it to verify
// that score tables cover the full domain.
var Tiers = []AnomalyTier{TierNormal, TierWatch, TierStrong, TierBlock}

// String returns the tier name used in logs and metrics labels.
func (t AnomalyTier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierWatch:
		return "watch"
	case TierStrong:
		return "strong"
	case TierBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the four defined tiers.
func (t AnomalyTier) Valid() bool {
	return t >= TierNormal && t <= TierBlock
}
