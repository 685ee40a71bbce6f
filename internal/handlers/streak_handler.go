package handlers

import (
	"fmt"
	"net/http"

	"medprep/internal/service"
)

// StreakHandler handles the streak routes. Owner routes act on the token subject;
// admin routes act on the {ownerId} path value.
type StreakHandler struct {
	streaks *service.StreakService
}

// NewStreakHandler creates a new streak handler
func NewStreakHandler(streaks *service.StreakService) *StreakHandler {
	return &StreakHandler{streaks: streaks}
}

// targetOwner is the path owner on admin routes and the authenticated owner otherwise
func targetOwner(r *http.Request) string {
	if owner := r.PathValue("ownerId"); owner != "" {
		return owner
	}
	return GetOwnerID(r.Context())
}

// GetStreak returns the streak with the 7-day activity calendar
func (h *StreakHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	overview, err := h.streaks.Overview(r.Context(), targetOwner(r))
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch streak data")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// Touch applies today's activity to the streak. Activity producers call it before
// committing the record that triggered it.
func (h *StreakHandler) Touch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// ForceUpdate applies today's activity even if today already has a record
func (h *StreakHandler) ForceUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *StreakHandler) update(w http.ResponseWriter, r *http.Request, force bool) {
	update := h.streaks.UpdateStreak(r.Context(), targetOwner(r), force)
	if update.Outcome == service.OutcomeFailed {
		respondWithServiceError(w, update.Err, "Failed to update streak")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"outcome": update.Outcome,
		"streak":  update.Record.Summary(),
	})
}

type resetRequest struct {
	Value *int `json:"value"`
}

// Reset force-sets the current streak; the value defaults to 1
func (h *StreakHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	value := 1
	if req.Value != nil {
		value = *req.Value
	}

	record, err := h.streaks.ResetStreak(r.Context(), targetOwner(r), value)
	if err != nil {
		respondWithServiceError(w, err, "Failed to reset streak")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Streak reset to %d", value),
		"streak":  record.Summary(),
	})
}

// Diagnostic shows what the tracker sees in today's and yesterday's windows
func (h *StreakHandler) Diagnostic(w http.ResponseWriter, r *http.Request) {
	diag, err := h.streaks.Diagnose(r.Context(), targetOwner(r))
	if err != nil {
		respondWithServiceError(w, err, "Failed to diagnose streak")
		return
	}
	respondJSON(w, http.StatusOK, diag)
}
