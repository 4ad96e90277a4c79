package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jmorland/securepay-backend/internal/domain/payment"
)

var (
	paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "securepay",
		Subsystem: "ledger",
		Name:      "payments_total",
		Help:      "Payment submissions by outcome.",
	}, []string{"outcome"})

	ruleOnlyDecisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "securepay",
		Subsystem: "ledger",
		Name:      "rule_only_decisions_total",
		Help:      "Payments decided without a model probability.",
	})
)

func observePayment(outcome payment.Status, ruleOnly bool) {
	paymentsTotal.WithLabelValues(string(outcome)).Inc()
	if ruleOnly {
		ruleOnlyDecisions.Inc()
	}
}
