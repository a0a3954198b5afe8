package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GateDecisions counts pipeline outcomes per guard. Allowed requests are
// attributed to the terminal "pipeline" pseudo-guard; denials carry the
// guard that short-circuited and the error code it returned.
var GateDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Request gating decisions by guard and outcome.",
	},
	[]string{"guard", "outcome"},
)

// LoginAttempts counts credential-exchange outcomes.
var LoginAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "billing",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome (success, failed, locked_out).",
	},
	[]string{"outcome"},
)

// Handler exposes the Prometheus registry as a gin handler.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
