// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package detection

import (
	"math"
	"testing"
	"time"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		expected  float64
		tolerance float64
	}{
		{
			name: "Seoul to Busan",
			lat1: 37.5665, lng1: 126.9780,
			lat2: 35.1796, lng2: 129.0756,
			expected:  325,
			tolerance: 10,
		},
		{
			name: "NYC to London",
			lat1: 40.7128, lng1: -74.0060,
			lat2: 51.5074, lng2: -0.1278,
			expected:  5567,
			tolerance: 50,
		},
		{
			name: "same point",
			lat1: 37.5665, lng1: 126.9780,
			lat2: 37.5665, lng2: 126.9780,
			expected:  0,
			tolerance: 1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Distance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(d-tt.expected) > tt.tolerance {
				t.Errorf("Distance = %.2f km, expected %.2f km (+/- %.2f)", d, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{37.5665, 126.9780, 35.1796, 129.0756},
		{40.7128, -74.0060, 51.5074, -0.1278},
		{-33.8688, 151.2093, 35.6762, 139.6503},
		{90, 180, -90, -180},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1], p[2], p[3])
		ba := Distance(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("Distance not symmetric: %.12f vs %.12f for %v", ab, ba, p)
		}
	}
}

func TestSpeed(t *testing.T) {
	tests := []struct {
		name    string
		dist    float64
		elapsed float64
		want    float64
	}{
		{"one hour", 100, 3600, 100},
		{"half hour", 50, 1800, 100},
		{"zero elapsed is undefined", 10, 0, SpeedUndefined},
		{"negative elapsed is undefined", 10, -5, SpeedUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Speed(tt.dist, tt.elapsed); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Speed(%v, %v) = %v, want %v", tt.dist, tt.elapsed, got, tt.want)
			}
		})
	}
}

// classifyAt builds a previous point offset km north of the current point and
// elapsed seconds earlier, then classifies the pair. 1 degree of latitude is
// ~111.19 km on the 6371 km sphere.
func classifyAt(t *testing.T, distanceKm, elapsedSeconds float64, dupThreshold time.Duration) AnomalyTier {
	t.Helper()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	prev := now.Add(-time.Duration(elapsedSeconds * float64(time.Second)))
	latOffset := distanceKm / 111.19
	return Classify(37.0+latOffset, 127.0, 37.0, 127.0, prev, now, dupThreshold)
}

func TestClassify(t *testing.T) {
	const dup = 5 * time.Second

	tests := []struct {
		name    string
		dist    float64
		elapsed float64
		want    AnomalyTier
	}{
		{"duplicate band ignores distance", 5000, 2, TierNormal},
		{"time regression with noise distance", 0.05, -10, TierNormal},
		{"time regression with real movement", 5, -10, TierBlock},
		{"short hop grace band", 0.25, 30, TierNormal},
		{"gps margin with long elapsed", 0.05, 7200, TierNormal},
		{"3000 km/h blocks", 50, 60, TierBlock},
		{"90 km/h over 200s exceeds 80 threshold", 5, 200, TierWatch},
		{"90 km/h over 700s stays under 120 threshold", 17.5, 700, TierNormal},
		{"153 km/h over 4000s exceeds 150 threshold", 170, 4000, TierWatch},
		{"149 km/h over 4000s is normal", 165, 4000, TierNormal},
		{"400 km/h is strong suspicion", 400, 3600, TierStrong},
		{"999 km/h is still strong", 999, 3600, TierStrong},
		{"1000 km/h blocks", 1000, 3600, TierBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyAt(t, tt.dist, tt.elapsed, dup); got != tt.want {
				t.Errorf("Classify(dist=%vkm, elapsed=%vs) = %v, want %v", tt.dist, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestClassifyZeroElapsed(t *testing.T) {
	// duplicateThreshold 0 disables the duplicate band so the elapsed==0
	// reconnection rule is reachable.
	if got := classifyAt(t, 0.05, 0, 0); got != TierNormal {
		t.Errorf("elapsed=0 dist=0.05km = %v, want TierNormal", got)
	}
	if got := classifyAt(t, 1, 0, 0); got != TierBlock {
		t.Errorf("elapsed=0 dist=1km = %v, want TierBlock", got)
	}
}

func TestIsTimeManipulation(t *testing.T) {
	server := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	plus11 := server.Add(11 * time.Minute)
	minus11 := server.Add(-11 * time.Minute)
	plus9 := server.Add(9 * time.Minute)

	if !IsTimeManipulation(server, &plus11) {
		t.Error("11 minutes ahead should be manipulation")
	}
	if !IsTimeManipulation(server, &minus11) {
		t.Error("11 minutes behind should be manipulation")
	}
	if IsTimeManipulation(server, &plus9) {
		t.Error("9 minutes of skew is within tolerance")
	}
	if IsTimeManipulation(server, nil) {
		t.Error("absent client time cannot be verified")
	}
}

func TestIsValidCoordinate(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		lat  *float64
		lng  *float64
		want bool
	}{
		{"boundary corner", f(90), f(180), true},
		{"negative boundary corner", f(-90), f(-180), true},
		{"lat out of range", f(91), f(0), false},
		{"lng out of range", f(0), f(181), false},
		{"nil lat", nil, f(0), false},
		{"nil lng", f(0), nil, false},
		{"ordinary point", f(37.5665), f(126.9780), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCoordinate(tt.lat, tt.lng); got != tt.want {
				t.Errorf("IsValidCoordinate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTierString(t *testing.T) {
	want := map[AnomalyTier]string{
		TierNormal: "normal", TierWatch: "watch", TierStrong: "strong", TierBlock: "block",
		AnomalyTier(9): "unknown",
	}
	for tier, name := range want {
		if tier.String() != name {
			t.Errorf("tier %d String() = %q, want %q", int(tier), tier.String(), name)
		}
	}
}
