// Geogate - Location-Gated Unlock Abuse Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geogate

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geogate/internal/config"
	"github.com/tomtom215/geogate/internal/logging"
	"github.com/tomtom215/geogate/internal/sanction"
	"github.com/tomtom215/geogate/internal/unlock"
)

// maxListLimit caps one listing page.
const maxListLimit = 500

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// evaluateRequest is the wire form of one unlock attempt.
type evaluateRequest struct {
	MemberID  int64    `json:"member_id"`
	RiskLevel string   `json:"risk_level"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	ClientTime *time.Time `json:"client_time,omitempty"`

	Previous *struct {
		Latitude   float64   `json:"latitude"`
		Longitude  float64   `json:"longitude"`
		ReportedAt time.Time `json:"reported_at"`
	} `json:"previous,omitempty"`
}

// evaluateResponse is the verdict returned to the unlock handler.
type evaluateResponse struct {
	Success      bool   `json:"success"`
	ConditionMet bool   `json:"condition_met"`
	AnomalyTier  int    `json:"anomaly_tier"`
	Tier         string `json:"tier"`
	ScoreDelta   int    `json:"score_delta"`
	Outcome      string `json:"outcome"`
}

// handleEvaluate serves POST /api/v1/evaluate, the inbound edge of the
// evaluation pipeline.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MemberID <= 0 {
		writeError(w, http.StatusBadRequest, "member_id is required")
		return
	}

	level := config.RiskLevel(req.RiskLevel)
	switch level {
	case config.RiskLow, config.RiskMedium, config.RiskHigh:
	default:
		writeError(w, http.StatusBadRequest, "invalid risk_level")
		return
	}

	attempt := unlock.Attempt{
		MemberID:   req.MemberID,
		RiskLevel:  level,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		ClientTime: req.ClientTime,
	}
	if req.Previous != nil {
		attempt.Previous = &unlock.Observation{
			Latitude:   req.Previous.Latitude,
			Longitude:  req.Previous.Longitude,
			ReportedAt: req.Previous.ReportedAt,
		}
	}

	result, err := s.evaluator.EvaluateUnlockAttempt(r.Context(), attempt)
	if err != nil {
		logging.Error().Err(err).Int64("member_id", req.MemberID).Msg("Evaluation failed")
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Success:      result.Success(),
		ConditionMet: result.ConditionMet,
		AnomalyTier:  int(result.Tier),
		Tier:         result.Tier.String(),
		ScoreDelta:   result.ScoreDelta,
		Outcome:      result.Outcome,
	})
}

// handleListSanctions serves GET /api/v1/sanctions.
// Query parameters: member_id, type, limit (max 500), offset.
func (s *Server) handleListSanctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter sanction.Filter

	if raw := q.Get("member_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid member_id")
			return
		}
		filter.MemberID = &id
	}

	if raw := q.Get("type"); raw != "" {
		typ := sanction.Type(raw)
		switch typ {
		case sanction.TypeStop, sanction.TypeRestore, sanction.TypeExit, sanction.TypeAutoTemporarySuspension:
			filter.Type = &typ
		default:
			writeError(w, http.StatusBadRequest, "invalid sanction type")
			return
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	records, err := s.sanctions.Query(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list sanction records")
		writeError(w, http.StatusInternalServerError, "failed to list sanctions")
		return
	}
	if records == nil {
		records = []sanction.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sanctions": records,
		"count":     len(records),
	})
}
