package handlers

import (
	"net/http"
	"strconv"
	"time"

	"medprep/internal/models"
	"medprep/internal/service"
)

// ReviewHandler handles the spaced-repetition review routes
type ReviewHandler struct {
	reviews *service.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Dashboard returns the owner's review dashboard
func (h *ReviewHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reviews.GetDashboardSummary(r.Context(), GetOwnerID(r.Context()))
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch dashboard data")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// CompletionStats returns the daily, weekly and monthly completion trend
func (h *ReviewHandler) CompletionStats(w http.ResponseWriter, r *http.Request) {
	trend, err := h.reviews.GetCompletionTrend(r.Context(), GetOwnerID(r.Context()))
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch completion stats")
		return
	}
	respondJSON(w, http.StatusOK, trend)
}

// GetPreferences returns the owner's preferences, creating defaults on first read
func (h *ReviewHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.reviews.GetPreferences(r.Context(), GetOwnerID(r.Context()))
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch preferences")
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences applies a partial preferences update
func (h *ReviewHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch service.PreferencesPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	prefs, err := h.reviews.UpdatePreferences(r.Context(), GetOwnerID(r.Context()), patch)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update preferences")
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

type startSessionRequest struct {
	Items []models.ReviewItem `json:"items"`
}

// StartSession creates a pending stage-1 session
func (h *ReviewHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	session, err := h.reviews.StartSession(r.Context(), GetOwnerID(r.Context()), req.Items)
	if err != nil {
		respondWithServiceError(w, err, "Failed to start review session")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":   "Review session created",
		"sessionId": session.ID,
		"session":   session,
	})
}

// ListSessions lists the owner's sessions, newest first
func (h *ReviewHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := models.ReviewStatus(r.URL.Query().Get("status"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse{Message: "limit must be a non-negative integer", Field: "limit"})
			return
		}
		limit = n
	}

	sessions, err := h.reviews.ListSessions(r.Context(), GetOwnerID(r.Context()), status, limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list review sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.ReviewSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

type completeSessionRequest struct {
	Performance models.Performance `json:"performance"`
}

// CompleteSession records performance and schedules the next session
func (h *ReviewHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req completeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	result, err := h.reviews.CompleteSession(r.Context(), sessionID, GetOwnerID(r.Context()), req.Performance)
	if err != nil {
		respondWithServiceError(w, err, "Failed to complete review session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":       "Review session completed",
		"nextReview":    result.NextReviewDate,
		"previousStage": result.PreviousStage,
		"nextStage":     result.NextStage,
		"nextSession":   result.NextSession,
		"degraded":      result.Degraded,
	})
}

type rescheduleRequest struct {
	ScheduledFor time.Time `json:"scheduledFor"`
}

// RescheduleSession moves a session to a new time
func (h *ReviewHandler) RescheduleSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	session, err := h.reviews.RescheduleSession(r.Context(), sessionID, GetOwnerID(r.Context()), req.ScheduledFor)
	if err != nil {
		respondWithServiceError(w, err, "Failed to reschedule review")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Review rescheduled",
		"review":  session,
	})
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusNotFound, ErrNotFound, "", nil)
		return 0, false
	}
	return id, true
}
