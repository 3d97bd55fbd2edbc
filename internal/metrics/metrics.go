// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckinScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_checkin_scans_total",
		Help: "Check-in scans by outcome (success, warning, error, paused, unresolved).",
	}, []string{"outcome"})

	CheckinUndos = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubhub_checkin_undos_total",
		Help: "Presence marks reverted by an operator.",
	})

	OnSpotRegistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubhub_onspot_registrations_total",
		Help: "Registrations created at the venue.",
	})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_registrations_total",
		Help: "Registration attempts by result.",
	}, []string{"result"})

	ScoresSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubhub_scores_submitted_total",
		Help: "Judge score sheets stored.",
	})

	EventTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_event_transitions_total",
		Help: "Event lifecycle transitions by action.",
	}, []string{"action"})

	ReportJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubhub_report_jobs_total",
		Help: "Report jobs by final status.",
	}, []string{"status"})

	LiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clubhub_live_streams",
		Help: "Open server-sent-event streams.",
	})
)
