// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreakUpdates counts updateStreak calls by outcome: updated, skipped, failed
	StreakUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_streak_updates_total",
			Help: "Streak update attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ScheduleFallbacks counts next-review computations that fell back to a flat 24h interval
	ScheduleFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medprep_schedule_fallbacks_total",
			Help: "Next review dates computed with the fallback interval",
		},
	)

	// ReviewCompletions counts completed sessions by stage transition: promoted, held, demoted
	ReviewCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_review_completions_total",
			Help: "Completed review sessions by stage transition",
		},
		[]string{"transition"},
	)

	// MissedSessions counts sessions swept to missed
	MissedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medprep_review_sessions_missed_total",
			Help: "Pending review sessions marked as missed",
		},
	)

	// ActivityEvents counts consumed activity events by result: ack, requeue, drop
	ActivityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_activity_events_total",
			Help: "Activity events consumed from the broker",
		},
		[]string{"result"},
	)

	// RemindersSent counts reminder emails by status: sent, failed
	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_review_reminders_total",
			Help: "Review reminder emails",
		},
		[]string{"status"},
	)

	// HTTPRequestDuration observes request latency by route pattern and status code
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medprep_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
