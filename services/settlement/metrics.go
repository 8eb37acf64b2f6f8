package settlement

import "github.com/prometheus/client_golang/prometheus"

var (
	outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes_total",
		Help: "Settlement monitor decisions per reward.",
	}, []string{"outcome"})
	claims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_claims_total",
		Help: "Reward claims by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(outcomes, claims)
}
