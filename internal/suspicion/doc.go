// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

// Package suspicion tracks per-member abuse state that must survive
// restarts but has no place in the relational ledger: accumulated suspicion
// scores, rate-limit cooldowns, and the sweep lease.
//
// Storage is BadgerDB. Scores live in fixed windows: the first anomaly in a
// window starts the clock, every further anomaly accumulates into the same
// entry, and Badger's TTL retires the whole entry when the window ends.
// Nothing slides; a member who stays quiet for the window length starts
// from zero.
package suspicion
