package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NodeStepsTotal counts executed steps and pure evaluations per node kind.
	NodeStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vscript_node_steps_total",
			Help: "Total number of node steps executed",
		},
		[]string{"kind"},
	)

	// ChainsTotal counts finished execution chains by result.
	ChainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vscript_chains_total",
			Help: "Total number of execution chains run",
		},
		[]string{"result"},
	)

	// RuntimeErrorsTotal counts abandoned chains by error code.
	RuntimeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vscript_runtime_errors_total",
			Help: "Total number of runtime errors by code",
		},
		[]string{"code"},
	)
)

func init() {
	prometheus.MustRegister(NodeStepsTotal)
	prometheus.MustRegister(ChainsTotal)
	prometheus.MustRegister(RuntimeErrorsTotal)
}
