// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package suspicion

import (
	"sync"
	"time"
)

// requestWindow is a bucketed sliding window counter for one member and one
// risk level. The window is split into buckets that are summed on read and
// recycled as time advances.
//
// Increment and Count are O(1) and O(k) for k buckets; memory is O(k) per
// tracked member.
type requestWindow struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

func newRequestWindow(windowSize time.Duration, numBuckets int, now time.Time) *requestWindow {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &requestWindow{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: now,
	}
}

// IncrementAndCount records one request and returns the total in the window,
// including the request just recorded.
func (w *requestWindow) IncrementAndCount(now time.Time) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance(now)
	w.buckets[w.current]++

	var total int64
	for _, c := range w.buckets {
		total += c
	}
	return total
}

// Count returns the total in the window without recording anything.
func (w *requestWindow) Count(now time.Time) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance(now)
	var total int64
	for _, c := range w.buckets {
		total += c
	}
	return total
}

// advance recycles buckets that fell out of the window. Lock must be held.
func (w *requestWindow) advance(now time.Time) {
	elapsed := now.Sub(w.lastUpdate)
	bucketsElapsed := int(elapsed / w.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= w.numBuckets {
		for i := range w.buckets {
			w.buckets[i] = 0
		}
		w.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			w.current = (w.current + 1) % w.numBuckets
			w.buckets[w.current] = 0
		}
	}
	w.lastUpdate = now
}

// windowSet keys request windows by member and risk level, with a crude cap
// to bound memory under key churn.
type windowSet struct {
	mu         sync.Mutex
	windows    map[string]*requestWindow
	windowSize time.Duration
	numBuckets int
	maxKeys    int
}

func newWindowSet(windowSize time.Duration, numBuckets, maxKeys int) *windowSet {
	return &windowSet{
		windows:    make(map[string]*requestWindow),
		windowSize: windowSize,
		numBuckets: numBuckets,
		maxKeys:    maxKeys,
	}
}

func (s *windowSet) get(key string, now time.Time) *requestWindow {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		if s.maxKeys > 0 && len(s.windows) >= s.maxKeys {
			// Map iteration order makes this an arbitrary eviction, which
			// is acceptable: a dropped window only forgets some requests.
			for k := range s.windows {
				delete(s.windows, k)
				break
			}
		}
		w = newRequestWindow(s.windowSize, s.numBuckets, now)
		s.windows[key] = w
	}
	return w
}
