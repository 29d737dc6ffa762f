// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbook_search_requests_total",
		Help: "Entry searches by mode (page, count).",
	}, []string{"mode"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "logbook_search_duration_seconds",
		Help:    "Time spent resolving scope, filtering and threading entries.",
		Buckets: prometheus.DefBuckets,
	})

	LocksAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logbook_locks_acquired_total",
		Help: "Entry locks created.",
	})

	LockConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbook_lock_conflicts_total",
		Help: "Lock acquisitions or edits blocked by another owner's lock.",
	}, []string{"operation"})

	ChangesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbook_changes_recorded_total",
		Help: "Revisions appended to the change log by record kind.",
	}, []string{"kind"})

	MediaExtraction = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbook_media_extractions_total",
		Help: "Embedded media extraction outcomes.",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbook_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})
)
