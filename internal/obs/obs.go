// Package obs provides the prometheus metrics registry shared by the
// protocol-stack components (transaction manager, segmentation, COV,
// MS/TP, router), replacing the teacher's hand-rolled Counter/Gauge/
// LatencyHistogram types in metrics.go with real prometheus vectors
// for anything that leaves the client's own connection-level metrics
// in bacnet.Metrics. The client's Snapshot() view in metrics.go is
// kept as-is and remains the cheap in-process fallback when a
// prometheus registry isn't wired up (e.g. in unit tests).
package obs

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every component's prometheus collectors. Callers
// typically construct one Registry per process and register it with
// prometheus.DefaultRegisterer, or an isolated registry in tests.
type Registry struct {
	InvokeIDsActive      *prometheus.GaugeVec
	TransactionsTotal    *prometheus.CounterVec
	TransactionRetries   *prometheus.CounterVec
	TransactionTimeouts  *prometheus.CounterVec

	SegmentsSent         prometheus.Counter
	SegmentsReceived     prometheus.Counter
	ReassembliesActive   prometheus.Gauge
	ReassemblyTimeouts   prometheus.Counter
	ReassemblyEvictions  prometheus.Counter

	COVSubscriptionsActive prometheus.Gauge
	COVNotificationsSent   prometheus.Counter
	COVSubscriptionsExpired prometheus.Counter

	MSTPFrameCRCErrors   *prometheus.CounterVec
	MSTPTokenHolds       *prometheus.CounterVec
	MSTPFramesSent       *prometheus.CounterVec

	RouterHopExceeded    prometheus.Counter
	RouterUnreachable    prometheus.Counter
	RouterBusySignals    prometheus.Counter
}

// NewRegistry constructs the full collector set under the "bacnet"
// namespace and registers it with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		InvokeIDsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bacnet", Subsystem: "transaction", Name: "invoke_ids_active",
			Help: "Number of invoke IDs currently allocated, per peer.",
		}, []string{"peer"}),
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "transaction", Name: "completed_total",
			Help: "Completed confirmed-service transactions, by outcome.",
		}, []string{"outcome"}),
		TransactionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "transaction", Name: "retries_total",
			Help: "Retransmissions issued by the transaction manager.",
		}, []string{"peer"}),
		TransactionTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "transaction", Name: "timeouts_total",
			Help: "Transactions that exhausted all retries.",
		}, []string{"peer"}),

		SegmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "segmentation", Name: "segments_sent_total",
			Help: "Outbound APDU segments transmitted.",
		}),
		SegmentsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "segmentation", Name: "segments_received_total",
			Help: "Inbound APDU segments accepted.",
		}),
		ReassembliesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bacnet", Subsystem: "segmentation", Name: "reassemblies_active",
			Help: "In-flight reassembly buffers.",
		}),
		ReassemblyTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "segmentation", Name: "reassembly_timeouts_total",
			Help: "Reassemblies dropped by the idle sweep.",
		}),
		ReassemblyEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "segmentation", Name: "reassembly_evictions_total",
			Help: "Reassemblies evicted to make room under the concurrency cap.",
		}),

		COVSubscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bacnet", Subsystem: "cov", Name: "subscriptions_active",
			Help: "Active COV subscriptions.",
		}),
		COVNotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "cov", Name: "notifications_sent_total",
			Help: "COV notifications dispatched to subscribers.",
		}),
		COVSubscriptionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "cov", Name: "subscriptions_expired_total",
			Help: "COV subscriptions removed by lifetime expiry.",
		}),

		MSTPFrameCRCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "mstp", Name: "frame_crc_errors_total",
			Help: "MS/TP frames dropped for header or data CRC mismatch.",
		}, []string{"kind"}),
		MSTPTokenHolds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "mstp", Name: "token_holds_total",
			Help: "Times this node has held the token.",
		}, []string{"address"}),
		MSTPFramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "mstp", Name: "frames_sent_total",
			Help: "MS/TP frames transmitted, by frame type.",
		}, []string{"frame_type"}),

		RouterHopExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "router", Name: "hop_count_exceeded_total",
			Help: "NPDUs dropped for exhausting their hop count.",
		}),
		RouterUnreachable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "router", Name: "network_unreachable_total",
			Help: "NPDUs dropped for an unknown destination network.",
		}),
		RouterBusySignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bacnet", Subsystem: "router", Name: "busy_signals_total",
			Help: "NPDUs rejected because the destination network reported busy.",
		}),
	}

	reg.MustRegister(
		r.InvokeIDsActive, r.TransactionsTotal, r.TransactionRetries, r.TransactionTimeouts,
		r.SegmentsSent, r.SegmentsReceived, r.ReassembliesActive, r.ReassemblyTimeouts, r.ReassemblyEvictions,
		r.COVSubscriptionsActive, r.COVNotificationsSent, r.COVSubscriptionsExpired,
		r.MSTPFrameCRCErrors, r.MSTPTokenHolds, r.MSTPFramesSent,
		r.RouterHopExceeded, r.RouterUnreachable, r.RouterBusySignals,
	)
	return r
}
