package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_worker_activations_total",
		Help: "Runs driven from QUEUED to RUNNING by this worker.",
	})
	activationAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_worker_activation_aborts_total",
		Help: "Activations abandoned because another actor moved the run.",
	})
	stopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_worker_stops_total",
		Help: "Runs completed from STOPPING to STOPPED.",
	})
	timeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_worker_timeouts_total",
		Help: "Runs transitioned to TIMED_OUT by the duration sweep.",
	})
	reconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_worker_reconciled_total",
		Help: "Stale runs force-failed by reconciliation.",
	})
	leaseRenewalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_worker_lease_renewals_total",
		Help: "Lease renewal sweeps executed.",
	})
)
