// Package metrics exposes Prometheus counters for the matching engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "facemark"

var (
	// MatchOutcomes counts SubmitMatch results by outcome status
	// (marked_present, duplicate, no_match, error).
	MatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "match_outcomes_total",
		Help:      "Recognition outcomes by status.",
	}, []string{"status"})

	// CacheRefreshes counts candidate set rebuilds from the store.
	CacheRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "refreshes_total",
		Help:      "Candidate set refreshes from the identity store.",
	})

	// CacheStaleServed counts reads answered with an expired entry because
	// the store was unreachable.
	CacheStaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "stale_served_total",
		Help:      "Expired candidate sets served due to store errors.",
	})

	// SessionsCreated counts created attendance sessions.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "created_total",
		Help:      "Attendance sessions created.",
	})

	// SessionsAutoClosed counts sessions closed by the deadline timer
	// rather than an explicit end call.
	SessionsAutoClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "auto_closed_total",
		Help:      "Sessions closed by the auto-close timer.",
	})

	// ClaimConflicts counts attendance claims lost to the storage
	// uniqueness constraint after the advisory read missed the winner.
	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "claim_conflicts_total",
		Help:      "Attendance claims resolved as duplicates by the storage constraint.",
	})
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
