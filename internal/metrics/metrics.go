// Package metrics exposes Prometheus metrics for the mounted filesystem
// and the media resolver.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"
)

var (
	registerOnce sync.Once

	operationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ytfs",
			Subsystem: "fuse",
			Name:      "operation_duration_seconds",
			Help:      "Amount of time spent per filesystem operation, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"operation", "status_code"})

	openDescriptors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ytfs",
			Subsystem: "fuse",
			Name:      "open_descriptors",
			Help:      "Number of descriptors currently open on result and control files.",
		})

	searchDirectories = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ytfs",
			Subsystem: "fuse",
			Name:      "search_directories",
			Help:      "Number of search directories in the namespace.",
		})

	bytesServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ytfs",
			Subsystem: "media",
			Name:      "bytes_served_total",
			Help:      "Total number of media bytes returned to readers.",
		},
		[]string{"mode"})

	extractorCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ytfs",
			Subsystem: "media",
			Name:      "extractor_duration_seconds",
			Help:      "Amount of time spent running the metadata extractor, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation", "outcome"})

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ytfs",
			Subsystem: "media",
			Name:      "cache_lookups_total",
			Help:      "Total number of metadata cache lookups.",
		},
		[]string{"result"})
)

// Register registers every collector with reg. It is safe to call more
// than once; only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			operationDurationSeconds,
			openDescriptors,
			searchDirectories,
			bytesServed,
			extractorCalls,
			cacheLookups,
		)
	})
}

// Operation holds the observers of a single filesystem operation.
type Operation struct {
	ok      prometheus.Observer
	failure prometheus.ObserverVec
}

// NewOperation returns the observers for operation.
func NewOperation(operation string) Operation {
	return Operation{
		ok:      operationDurationSeconds.WithLabelValues(operation, "OK"),
		failure: operationDurationSeconds.MustCurryWith(prometheus.Labels{"operation": operation}),
	}
}

// Observe records the duration of a call that started at start and ended
// with errno.
func (o Operation) Observe(errno syscall.Errno, start time.Time) {
	d := time.Since(start).Seconds()
	if errno == 0 {
		o.ok.Observe(d)
		return
	}
	// unix.ErrnoName gives a portable label instead of the numeric value.
	name := unix.ErrnoName(errno)
	if name == "" {
		name = "UNKNOWN"
	}
	o.failure.WithLabelValues(name).Observe(d)
}

func SetOpenDescriptors(n int) {
	openDescriptors.Set(float64(n))
}

func SetSearchDirectories(n int) {
	searchDirectories.Set(float64(n))
}

// AddBytesServed counts n media bytes returned in the given delivery mode
// ("stream" or "download").
func AddBytesServed(mode string, n int) {
	if n > 0 {
		bytesServed.WithLabelValues(mode).Add(float64(n))
	}
}

// ObserveExtractor records one extractor invocation.
func ObserveExtractor(operation string, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = "failure"
	}
	extractorCalls.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// CacheHit and CacheMiss count metadata cache lookups.
func CacheHit()  { cacheLookups.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }

// Server serves /metrics over HTTP.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
