// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package detection classifies whether a pair of location/time reports for a
// member is physically plausible.
//
// The classifier is a set of pure functions: great-circle distance, travel
// speed, and a four-tier anomaly classification with time-sensitive speed
// thresholds and GPS-noise tolerance bands. None of them perform I/O, hold
// state, or return errors; undefined cases produce explicit sentinel values
// for the caller to act on.
//
// Tiers:
//
//	TierNormal    - plausible movement (or a tolerated duplicate/jitter case)
//	TierWatch     - above the time-adjusted speed threshold; accumulate suspicion
//	TierStrong    - speed in the 300-1000 km/h band; strong suspicion
//	TierBlock     - physically impossible (>= 1000 km/h, or time regression
//	                combined with real movement)
package detection
