package investigation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	caseinv "github.com/jmorland/securepay-backend/internal/domain/investigation"
)

var casesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "securepay",
	Subsystem: "investigation",
	Name:      "cases_resolved_total",
	Help:      "Resolved cases by finding.",
}, []string{"finding"})

func observeResolution(finding caseinv.Finding) {
	casesResolved.WithLabelValues(string(finding)).Inc()
}
