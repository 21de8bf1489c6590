// Package metrics exposes process counters for the board RPC server and
// the trustee engine as Prometheus metrics, scraped over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "e2ecore"

var (
	// BoardEntriesAppended counts entries written to a board, by kind
	// ("config", "data").
	BoardEntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "board",
		Name:      "entries_appended_total",
		Help:      "Entries appended to a board, by kind.",
	}, []string{"kind"})

	// BoardRPCRequests counts board RPC requests, by route and status.
	BoardRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "board",
		Name:      "rpc_requests_total",
		Help:      "Board RPC requests handled, by route and HTTP status.",
	}, []string{"route", "status"})

	// TrusteePolls counts trustee engine poll iterations, by trustee
	// position and outcome ("ok", "error").
	TrusteePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trustee",
		Name:      "polls_total",
		Help:      "Trustee engine poll iterations, by position and outcome.",
	}, []string{"position", "outcome"})

	// TrusteeOutgoingMessages counts OutgoingMessages posted by a trustee,
	// by statement kind.
	TrusteeOutgoingMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trustee",
		Name:      "outgoing_messages_total",
		Help:      "Messages a trustee posted back to the board, by kind.",
	}, []string{"kind"})

	// TrusteeActiveBatches reports how many tally batches a trustee is
	// currently driving.
	TrusteeActiveBatches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trustee",
		Name:      "active_batches",
		Help:      "Tally batches currently registered with a trustee engine.",
	}, []string{"position"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
