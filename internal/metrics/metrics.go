package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the authentication gate. Registered on the default registry
// and served by the /metrics endpoint.
var (
	AttemptsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "attempts_recorded_total",
		Help:      "Authentication attempts recorded, by type and result.",
	}, []string{"attempt_type", "result"})

	BlocksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "blocks_created_total",
		Help:      "Progressive blocks created, by type and level.",
	}, []string{"block_type", "level"})

	BlocksLifted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "blocks_lifted_total",
		Help:      "Blocks deactivated, by cause (expired or manual).",
	}, []string{"cause"})

	SessionsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "device_sessions_registered_total",
		Help:      "Device sessions created at login.",
	})

	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "device_sessions_evicted_total",
		Help:      "Device sessions evicted because the per-user cap was reached.",
	})

	SessionValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "session_validations_total",
		Help:      "Session token validations on authenticated requests.",
	}, []string{"result"})
)
