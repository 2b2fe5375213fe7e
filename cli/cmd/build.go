package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/adapter/redis"
	"github.com/justapithecus/heliwatch/adapter/webhook"
	"github.com/justapithecus/heliwatch/archive"
	"github.com/justapithecus/heliwatch/fdsn"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/session"
)

// storageNone is the metrics storage dimension when archiving is off.
const storageNone = "none"

// openArchive creates the archive client for choice, or nil when
// archiving is disabled.
func openArchive(ctx context.Context, choice archiveChoice) (*archive.Client, error) {
	switch choice.backend {
	case "":
		return nil, nil
	case archive.BackendFS:
		return archive.NewFSClient(choice.dataset, choice.path)
	case archive.BackendS3:
		bucket, prefix := archive.ParseS3Path(choice.path)
		return archive.NewS3Client(ctx, choice.dataset, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
	case archive.BackendMem:
		return archive.NewClient(choice.dataset, lode.NewMemoryFactory())
	default:
		return nil, fmt.Errorf("unknown archive-backend: %s", choice.backend)
	}
}

// buildQuery returns the historical query service for choice.
// store must be non-nil when the source is the archive.
func buildQuery(choice queryChoice, store *archive.Client, logger *log.Logger) (session.HistoricalQuery, error) {
	switch choice.source {
	case "fdsn":
		return fdsn.New(fdsn.Config{
			BaseURL: choice.fdsnURL,
			Timeout: choice.fdsnTimeout,
			Retries: choice.fdsnRetries,
			Logger:  logger,
		})
	case "archive":
		if store == nil {
			return nil, errors.New("archive backfill requires an archive backend")
		}
		return archive.NewQuery(store.Dataset()), nil
	default:
		return nil, fmt.Errorf("invalid backfill: %s", choice.source)
	}
}

// notifier is an adapter that may also relay segments.
type notifier struct {
	adapter.Adapter
	segments adapter.SegmentPublisher // nil unless relaying
}

// buildNotifier creates the configured adapter, or nil when none is set.
func buildNotifier(choice adapterChoice) (*notifier, error) {
	retries := func(def int) int {
		if choice.retries != nil {
			return *choice.retries
		}
		return def
	}

	switch choice.typ {
	case "":
		if choice.relaySegments {
			return nil, errors.New("--relay-segments requires --adapter redis")
		}
		return nil, nil
	case "webhook":
		if choice.relaySegments {
			return nil, errors.New("--relay-segments requires --adapter redis")
		}
		a, err := webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: retries(webhook.DefaultRetries),
		})
		if err != nil {
			return nil, err
		}
		return &notifier{Adapter: a}, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:            choice.url,
			Channel:        choice.channel,
			SegmentChannel: choice.segmentChannel,
			Timeout:        choice.timeout,
			Retries:        retries(redis.DefaultRetries),
		})
		if err != nil {
			return nil, err
		}
		n := &notifier{Adapter: a}
		if choice.relaySegments {
			n.segments = a
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", choice.typ)
	}
}

// metricsServer serves Prometheus metrics for one session.
type metricsServer struct {
	srv  *http.Server
	addr string
}

// serveMetrics exposes the collector on addr at /metrics.
func serveMetrics(addr string, collector *metrics.Collector, logger *log.Logger) (*metricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics.NewPrometheusCollector(collector)); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m := &metricsServer{
		srv:  &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr: ln.Addr().String(),
	}

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", map[string]any{"error": err.Error()})
		}
	}()
	logger.Info("metrics listening", map[string]any{"addr": m.addr})
	return m, nil
}

// Addr returns the bound listener address.
func (m *metricsServer) Addr() string {
	return m.addr
}

// Shutdown stops the listener.
func (m *metricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
