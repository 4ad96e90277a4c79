package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "securepay",
	Subsystem: "risk",
	Name:      "scoring_duration_seconds",
	Help:      "End-to-end scoring pipeline latency per payment.",
	Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
})
