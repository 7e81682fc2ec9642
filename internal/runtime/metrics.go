package runtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
)

// Outcome label values of kafkaport_commands_total.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeFatal   = "fatal"
	OutcomeExit    = "exit"
	OutcomeNoReply = "noreply"
)

// CommandMetrics counts handled commands per variant, command and outcome.
type CommandMetrics struct {
	mu sync.Mutex

	commandsTotal *prometheus.CounterVec
	durationHist  *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// newPortCounterVec creates a counter vec in the kafkaport namespace.
func newPortCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kafkaport",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// newPortHistogramVec creates a histogram vec in the kafkaport namespace.
func newPortHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kafkaport",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewCommandMetrics creates the collectors. A nil registerer means the
// Prometheus default registerer.
func NewCommandMetrics(registerer prometheus.Registerer) *CommandMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CommandMetrics{
		registerer:    registerer,
		commandsTotal: newPortCounterVec("commands_total", "Total number of port commands handled", []string{"variant", "command", "outcome"}),
		durationHist:  newPortHistogramVec("command_duration_seconds", "Time spent handling a port command", []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30}, []string{"variant", "command"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *CommandMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range []prometheus.Collector{m.commandsTotal, m.durationHist} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordCommand records one handled command.
func (m *CommandMetrics) RecordCommand(variant, command, outcome string, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(variant, command, outcome).Inc()
	m.durationHist.WithLabelValues(variant, command).Observe(elapsed.Seconds())
}

// MetricsServer serves /metrics for a gatherer.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   loggingpkg.ServiceLogger
	done     chan struct{}
}

// StartMetricsServer listens on addr and serves the gatherer in the
// background. The listener is bound before returning, so a bad address fails
// startup.
func StartMetricsServer(addr string, gatherer prometheus.Gatherer, logger loggingpkg.ServiceLogger) (*MetricsServer, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s := &MetricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logger,
		done:     make(chan struct{}),
	}

	logger.Info("Starting metrics server", loggingpkg.LogFields{"address": ln.Addr().String()})
	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", err, loggingpkg.LogFields{"address": addr})
		}
	}()
	return s, nil
}

// Addr is the bound listen address.
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server and waits for the serve goroutine.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}

// Hooks records handled commands through CommandHooks.
func (m *CommandMetrics) Hooks() CommandHooks {
	return CommandHooks{
		OnCommandDone: func(info CommandInfo) {
			m.RecordCommand(info.Variant, info.Command, info.Outcome, info.Duration)
		},
		OnCommandError: func(info CommandInfo, _ error) {
			m.RecordCommand(info.Variant, info.Command, OutcomeFatal, info.Duration)
		},
	}
}
