package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arvera_calendar",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by handler.",
		},
		[]string{"handler"},
	)

	syncChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arvera_calendar",
			Name:      "sync_checks_total",
			Help:      "Count of update-signal poll ticks by outcome.",
		},
		[]string{"outcome"},
	)

	storeReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arvera_calendar",
			Name:      "store_reloads_total",
			Help:      "Count of appointment store reloads by result.",
		},
		[]string{"result"},
	)

	appointmentOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arvera_calendar",
			Name:      "appointment_operations_total",
			Help:      "Count of appointment mutations by action and result.",
		},
		[]string{"action", "result"},
	)

	skippedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arvera_calendar",
			Name:      "skipped_records_total",
			Help:      "Count of malformed appointment records skipped on load.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncChecks, storeReloads, appointmentOps, skippedRecords)
	})
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}

// IncSyncCheck records a poll tick outcome: "changed", "unchanged",
// "hidden", "busy" or "error".
func IncSyncCheck(outcome string) {
	syncChecks.WithLabelValues(outcome).Inc()
}

func IncStoreReload(result string) {
	storeReloads.WithLabelValues(result).Inc()
}

func IncAppointmentOp(action, result string) {
	appointmentOps.WithLabelValues(action, result).Inc()
}

func IncSkippedRecord() {
	skippedRecords.Inc()
}
