// Package metrics exposes the Prometheus counters the api and worker share.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login attempts by outcome: ok, invalid_credential,
	// device_lock_violation, not_found.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	// Joins counts scan attempts by outcome: created, duplicate,
	// token_invalid, not_enrolled, already_removed.
	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_joins_total",
		Help: "Session join attempts by outcome.",
	}, []string{"outcome"})

	// RecordsFinalized counts attendance windows closed at session end.
	RecordsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_records_finalized_total",
		Help: "Attendance records closed by session-end finalization.",
	})
)
