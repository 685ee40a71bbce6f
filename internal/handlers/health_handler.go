package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health returns 200 while the database answers pings
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			respondWithError(w, http.StatusServiceUnavailable, "Database unavailable", "health check failed", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
