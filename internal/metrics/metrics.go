// Package metrics exports search progress to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Amr-9/KeyHunter/pkg/search"
)

// Metrics holds the collectors of one process, registered on their own registry.
type Metrics struct {
	reg *prometheus.Registry

	keys      *prometheus.CounterVec
	speed     *prometheus.GaugeVec
	targets   *prometheus.GaugeVec
	restrides *prometheus.GaugeVec
	results   *prometheus.CounterVec

	mu        sync.Mutex
	lastTotal map[string]uint64
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		keys: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keyhunter_keys_total",
			Help: "Keys checked.",
		}, []string{"device"}),
		speed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyhunter_speed_mkeys",
			Help: "Speed over the last status interval in millions of keys per second.",
		}, []string{"device"}),
		targets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyhunter_targets_remaining",
			Help: "Targets not yet found.",
		}, []string{"device"}),
		restrides: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyhunter_restrides",
			Help: "Random strides drawn after the keyspace was exhausted.",
		}, []string{"device"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keyhunter_results_total",
			Help: "Keys found.",
		}, []string{"device"}),
		lastTotal: make(map[string]uint64),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveStatus records a status snapshot. Status totals are cumulative, so only the
// increase since the previous snapshot of the device is added to the key counter.
func (m *Metrics) ObserveStatus(device string, st search.Status) {
	m.mu.Lock()
	prev := m.lastTotal[device]
	m.lastTotal[device] = st.Total
	m.mu.Unlock()

	if st.Total > prev {
		m.keys.WithLabelValues(device).Add(float64(st.Total - prev))
	}
	m.speed.WithLabelValues(device).Set(st.Speed)
	m.targets.WithLabelValues(device).Set(float64(st.Targets))
	m.restrides.WithLabelValues(device).Set(float64(st.Restrides))
}

// ObserveResult counts a found key.
func (m *Metrics) ObserveResult(device string) {
	m.results.WithLabelValues(device).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
