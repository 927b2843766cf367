// Package metrics provides Prometheus metrics for the compatibility client.
package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts the total number of commands processed
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshim_commands_total",
			Help: "Total number of legacy commands processed",
		},
		[]string{"command"},
	)

	// CommandDuration measures the duration of command execution
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvshim_command_duration_seconds",
			Help:    "Duration of legacy command execution in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~6.5s
		},
		[]string{"command"},
	)

	// CommandErrors counts the number of command errors
	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshim_command_errors_total",
			Help: "Total number of legacy command errors",
		},
		[]string{"command"},
	)

	// CommandPassthrough counts commands forwarded verbatim because their
	// arguments could not be translated.
	CommandPassthrough = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshim_command_passthrough_total",
			Help: "Total number of commands forwarded untranslated to the backend",
		},
		[]string{"command"},
	)

	// SubscriberChurn counts backend subscriber re-establishments
	SubscriberChurn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshim_subscriber_churn_total",
			Help: "Total number of backend subscriber teardown/recreate cycles",
		},
		[]string{"result"},
	)

	// ActiveSubscriptions tracks channels plus patterns currently subscribed
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvshim_active_subscriptions",
			Help: "Number of subscribed channels and patterns",
		},
	)

	// MessagesDelivered counts pub/sub messages emitted to listeners
	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshim_messages_delivered_total",
			Help: "Total number of pub/sub messages delivered",
		},
		[]string{"kind"},
	)

	// MessagesDropped counts messages discarded because their subscriber
	// generation was superseded
	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kvshim_messages_dropped_total",
			Help: "Total number of stale pub/sub messages dropped",
		},
	)
)

// RecordCommand records metrics for a command execution
func RecordCommand(command string, duration time.Duration, isError bool) {
	CommandsTotal.WithLabelValues(command).Inc()
	CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	if isError {
		CommandErrors.WithLabelValues(command).Inc()
	}
}

// RecordChurn records one subscriber re-establishment
func RecordChurn(failed bool) {
	if failed {
		SubscriberChurn.WithLabelValues("failed").Inc()
		return
	}
	SubscriberChurn.WithLabelValues("ok").Inc()
}

// Server represents a metrics HTTP server
type Server struct {
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// metrics are optional, keep running
			log.Printf("Metrics server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop() error {
	return s.server.Close()
}
