package cmd

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/justapithecus/heliwatch/archive"
	"github.com/justapithecus/heliwatch/fdsn"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
)

func TestOpenArchive(t *testing.T) {
	tests := []struct {
		name        string
		choice      archiveChoice
		wantNil     bool
		wantBackend string
		wantErr     bool
	}{
		{name: "disabled", choice: archiveChoice{}, wantNil: true},
		{name: "memory", choice: archiveChoice{backend: "memory"}, wantBackend: archive.BackendMem},
		{name: "fs", choice: archiveChoice{backend: "fs", path: t.TempDir()}, wantBackend: archive.BackendFS},
		{name: "s3 without bucket", choice: archiveChoice{backend: "s3"}, wantErr: true},
		{name: "unknown", choice: archiveChoice{backend: "gcs"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := openArchive(context.Background(), tt.choice)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openArchive() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if client != nil {
					t.Errorf("openArchive() = %v, want nil", client)
				}
				return
			}
			if client.Backend() != tt.wantBackend {
				t.Errorf("Backend() = %q, want %q", client.Backend(), tt.wantBackend)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	q, err := buildQuery(queryChoice{source: "fdsn", fdsnURL: "https://service.example.com"}, nil, log.NewNop())
	if err != nil {
		t.Fatalf("fdsn: %v", err)
	}
	if _, ok := q.(*fdsn.Client); !ok {
		t.Errorf("fdsn query = %T, want *fdsn.Client", q)
	}

	if _, err := buildQuery(queryChoice{source: "archive"}, nil, log.NewNop()); err == nil {
		t.Error("archive query without a store should fail")
	}

	store, err := openArchive(context.Background(), archiveChoice{backend: "memory"})
	if err != nil {
		t.Fatalf("openArchive: %v", err)
	}
	q, err = buildQuery(queryChoice{source: "archive"}, store, log.NewNop())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, ok := q.(*archive.Query); !ok {
		t.Errorf("archive query = %T, want *archive.Query", q)
	}
}

func TestBuildNotifier(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name         string
		choice       adapterChoice
		wantNil      bool
		wantSegments bool
		wantErr      bool
	}{
		{name: "none", choice: adapterChoice{}, wantNil: true},
		{name: "webhook", choice: adapterChoice{typ: "webhook", url: "https://hooks.example.com"}},
		{name: "webhook without url", choice: adapterChoice{typ: "webhook"}, wantErr: true},
		{name: "redis", choice: adapterChoice{typ: "redis", url: "redis://" + mr.Addr()}},
		{name: "redis relay", choice: adapterChoice{typ: "redis", url: "redis://" + mr.Addr(), relaySegments: true}, wantSegments: true},
		{name: "relay without adapter", choice: adapterChoice{relaySegments: true}, wantErr: true},
		{name: "relay via webhook", choice: adapterChoice{typ: "webhook", url: "https://hooks.example.com", relaySegments: true}, wantErr: true},
		{name: "unknown", choice: adapterChoice{typ: "kafka", url: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := buildNotifier(tt.choice)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildNotifier() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if n != nil {
					t.Errorf("buildNotifier() = %v, want nil", n)
				}
				return
			}
			defer func() { _ = n.Close() }()
			if (n.segments != nil) != tt.wantSegments {
				t.Errorf("segments relay = %v, want %v", n.segments != nil, tt.wantSegments)
			}
		})
	}
}

func TestServeMetrics(t *testing.T) {
	collector := metrics.NewCollector("sess-001", "UW.JCW..EHZ", "tcp", storageNone)
	collector.IncPacketAccepted()
	collector.IncPacketAccepted()

	srv, err := serveMetrics("127.0.0.1:0", collector, log.NewNop())
	if err != nil {
		t.Fatalf("serveMetrics: %v", err)
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "heliwatch_packets_accepted_total") {
		t.Errorf("metrics body missing packets counter:\n%s", body)
	}
	if !strings.Contains(string(body), `session_id="sess-001"`) {
		t.Errorf("metrics body missing session label:\n%s", body)
	}
}
