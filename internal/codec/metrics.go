package codec

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OperationsTotal counts encode and decode calls by format and result.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vscript_codec_operations_total",
		Help: "Total number of codec operations",
	},
	[]string{"format", "op", "result"},
)

func init() {
	prometheus.MustRegister(OperationsTotal)
}

func observe(f Format, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(string(f), op, result).Inc()
}
