// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package detection

import (
	"math"
	"time"
)

const (
	// earthRadiusKm is the mean Earth radius used by the Haversine formula.
	earthRadiusKm = 6371.0

	// SpeedUndefined is returned by Speed when elapsed time is non-positive.
	// Callers must check for it; it is a sentinel, not a literal speed.
	SpeedUndefined = -1.0

	// gpsErrorMarginKm is ordinary GPS jitter; movement below it never counts.
	gpsErrorMarginKm = 0.1

	// reconnectJumpKm tolerates the position jump seen when a device
	// reacquires a GPS fix, applied to zero/negative elapsed time and to
	// short hops under a minute.
	reconnectJumpKm = 0.3

	// shortHopWindow is the grace band for small movements in quick succession.
	shortHopWindow = 60 * time.Second

	// blockSpeedKmH is the hard impossible-travel boundary.
	blockSpeedKmH = 1000.0

	// strongSpeedKmH is the lower bound of the strong-suspicion band.
	strongSpeedKmH = 300.0

	// MaxClockSkew is the tolerated difference between server and client
	// clocks before the report counts as time manipulation.
	MaxClockSkew = 10 * time.Minute
)

// Distance returns the great-circle distance in kilometers between two
// points, using the Haversine formula. Symmetric; zero iff the points are
// equal within floating precision.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lng1Rad := lng1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lng2Rad := lng2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLng := lng2Rad - lng1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Speed returns the travel speed in km/h for the given distance and elapsed
// seconds. Returns SpeedUndefined when elapsedSeconds <= 0: speed is
// undefined there, not zero.
func Speed(distanceKm, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return SpeedUndefined
	}
	return distanceKm / (elapsedSeconds / 3600.0)
}

// Classify evaluates a (previous, current) location/time pair and returns the
// anomaly tier. duplicateThreshold is the window inside which a repeated
// report is treated as a duplicate tap or client retry.
//
// The rules are evaluated in strict order; earlier rules win.
func Classify(prevLat, prevLng, currLat, currLng float64, prevTime, currTime time.Time, duplicateThreshold time.Duration) AnomalyTier {
	elapsed := currTime.Sub(prevTime).Seconds()
	distance := Distance(prevLat, prevLng, currLat, currLng)

	// Duplicate/retry band: ignore any GPS jitter inside it.
	if elapsed >= 0 && elapsed < duplicateThreshold.Seconds() {
		return TierNormal
	}

	// Client clock moved backward. Noise-level movement is forgiven; real
	// movement combined with time regression is impossible.
	if elapsed < 0 {
		if distance < gpsErrorMarginKm {
			return TierNormal
		}
		return TierBlock
	}

	// Two reports at the same instant: tolerate a reconnection jump only.
	if elapsed == 0 {
		if distance < reconnectJumpKm {
			return TierNormal
		}
		return TierBlock
	}

	// Ordinary GPS error margin, regardless of elapsed time.
	if distance < gpsErrorMarginKm {
		return TierNormal
	}

	// Short-hop grace band.
	if elapsed < shortHopWindow.Seconds() && distance < reconnectJumpKm {
		return TierNormal
	}

	speed := distance / (elapsed / 3600.0)
	threshold := adjustedSpeedThreshold(elapsed)

	switch {
	case speed >= blockSpeedKmH:
		return TierBlock
	case speed >= strongSpeedKmH:
		return TierStrong
	case speed >= threshold:
		return TierWatch
	default:
		return TierNormal
	}
}

// adjustedSpeedThreshold returns the tier-1 speed threshold in km/h as a step
// function of elapsed seconds. Short gaps get a low threshold (sustained high
// speed over minutes is suspicious); long gaps allow sustained highway or
// rail speeds.
func adjustedSpeedThreshold(elapsedSeconds float64) float64 {
	switch {
	case elapsedSeconds < 300:
		return 80
	case elapsedSeconds < 600:
		return 100
	case elapsedSeconds < 1800:
		return 120
	case elapsedSeconds < 3600:
		return 140
	default:
		return 150
	}
}

// IsTimeManipulation reports whether the client-reported clock deviates from
// the server clock by more than MaxClockSkew. A nil clientTime cannot be
// verified and is not treated as manipulation.
func IsTimeManipulation(serverTime time.Time, clientTime *time.Time) bool {
	if clientTime == nil {
		return false
	}
	skew := serverTime.Sub(*clientTime)
	if skew < 0 {
		skew = -skew
	}
	return skew > MaxClockSkew
}

// IsValidCoordinate reports whether lat/lng form a real geographic
// coordinate. Nil inputs are invalid.
func IsValidCoordinate(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}
