package handlers

import "net/http"

// RegisterRoutes mounts the review and streak API on mux
func RegisterRoutes(mux *http.ServeMux, m *Middleware, reviews *ReviewHandler, streaks *StreakHandler) {
	owner := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RateLimit(m.RequireOwner(h))
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RateLimit(m.RequireAdmin(h))
	}

	// Review routes
	mux.HandleFunc("GET /api/reviews/dashboard", owner(reviews.Dashboard))
	mux.HandleFunc("GET /api/reviews/completion-stats", owner(reviews.CompletionStats))
	mux.HandleFunc("GET /api/reviews/preferences", owner(reviews.GetPreferences))
	mux.HandleFunc("POST /api/reviews/preferences", owner(reviews.UpdatePreferences))
	mux.HandleFunc("POST /api/reviews/start-session", owner(reviews.StartSession))
	mux.HandleFunc("GET /api/reviews/sessions", owner(reviews.ListSessions))
	mux.HandleFunc("POST /api/reviews/{id}/complete", owner(reviews.CompleteSession))
	mux.HandleFunc("POST /api/reviews/{id}/reschedule", owner(reviews.RescheduleSession))

	// Streak routes
	mux.HandleFunc("GET /api/streak", owner(streaks.GetStreak))
	mux.HandleFunc("POST /api/streak/touch", owner(streaks.Touch))
	mux.HandleFunc("POST /api/streak/force-update", owner(streaks.ForceUpdate))
	mux.HandleFunc("POST /api/streak/reset", owner(streaks.Reset))
	mux.HandleFunc("GET /api/streak/diagnostic", owner(streaks.Diagnostic))

	// Admin routes
	mux.HandleFunc("GET /api/admin/streak/{ownerId}", admin(streaks.GetStreak))
	mux.HandleFunc("POST /api/admin/streak/{ownerId}/force-update", admin(streaks.ForceUpdate))
	mux.HandleFunc("POST /api/admin/streak/{ownerId}/reset", admin(streaks.Reset))
	mux.HandleFunc("GET /api/admin/streak/{ownerId}/diagnostic", admin(streaks.Diagnostic))
}
