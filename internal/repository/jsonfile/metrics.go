package jsonfile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_store_operations_total",
			Help: "Total number of cart store operations by result",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cart_store_operation_duration_seconds",
			Help:    "Duration of cart store operations in seconds, file I/O included",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	loadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_store_load_failures_total",
			Help: "Loads that fell back to an empty collection because the file could not be read or parsed",
		},
		[]string{"reason"},
	)

	cartsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cart_store_carts",
			Help: "Number of carts seen in the backing file by the last load or write",
		},
	)
)
