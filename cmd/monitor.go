package cmd

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/CraigKelly/bayesgraph/sampler"
)

// monitor serves the sampler metrics over HTTP while a run is going
type monitor struct {
	addr     string
	log      *zap.Logger
	registry *prometheus.Registry
	listener net.Listener
	stopped  chan struct{}
	server   *http.Server

	Metrics *sampler.Metrics
}

func newMonitor(addr string, log *zap.Logger) (*monitor, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := sampler.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &monitor{addr: addr, log: log, registry: reg, Metrics: metrics}, nil
}

// Start begins serving /metrics
func (m *monitor) Start() error {
	if m.server != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return errors.Wrapf(err, "Could not listen on %s", m.addr)
	}
	m.listener = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	// Redirect to the only thing currently available
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/metrics", http.StatusTemporaryRedirect)
	})

	m.stopped = make(chan struct{})
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		defer close(m.stopped)
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Warn("metrics server failed", zap.Error(err))
		}
	}()

	m.log.Info("metrics available", zap.String("url", "http://"+ln.Addr().String()+"/metrics"))
	return nil
}

// Addr is the address actually listened on
func (m *monitor) Addr() string {
	if m.listener == nil {
		return m.addr
	}
	return m.listener.Addr().String()
}

// Stop shuts the server down, waiting at most two seconds
func (m *monitor) Stop() {
	if m.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.server.Shutdown(ctx)

	select {
	case <-m.stopped:
		m.log.Debug("metrics server stopped")
	case <-ctx.Done():
		m.log.Warn("metrics server would NOT stop: just continuing on")
	}
}
