package cmd

import (
	"net"
	"net/http"
	"testing"
)

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func watchArgs(fdsnURL, datalinkAddr string, extra ...string) []string {
	args := []string{
		"heliwatch", "watch",
		"--no-tui",
		"--channel", "UW.JCW..EHZ",
		"--span", "1h",
		"--fdsn-url", fdsnURL,
		"--fdsn-retries", "0",
		"--datalink-url", datalinkAddr,
		"--dial-timeout", "1s",
	}
	return append(args, extra...)
}

func TestWatch_DataUnavailableExitsTwo(t *testing.T) {
	srv := fdsnServer(t, nil, http.StatusNoContent)
	app, _ := newTestApp(WatchCommand())

	err := app.Run(watchArgs(srv.URL, closedAddr(t)))
	if code := exitCode(t, err); code != exitDataUnavailable {
		t.Errorf("exit code = %d (%v), want %d", code, err, exitDataUnavailable)
	}
}

func TestWatch_ConnectionErrorExitsThree(t *testing.T) {
	srv := fdsnServer(t, mseedHour(t), 0)
	app, _ := newTestApp(WatchCommand())

	err := app.Run(watchArgs(srv.URL, closedAddr(t),
		"--archive-backend", "memory",
		"--metrics-addr", "127.0.0.1:0",
	))
	if code := exitCode(t, err); code != exitConnection {
		t.Errorf("exit code = %d (%v), want %d", code, err, exitConnection)
	}
}

func TestWatch_UsageErrorsExitOne(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing channel", []string{"heliwatch", "watch", "--no-tui"}},
		{"bad datalink url", []string{"heliwatch", "watch", "--no-tui", "--channel", "UW.JCW..EHZ", "--datalink-url", "http://x"}},
		{"relay without redis", []string{"heliwatch", "watch", "--no-tui", "--channel", "UW.JCW..EHZ", "--relay-segments"}},
		{"missing config file", []string{"heliwatch", "watch", "--config", "/nonexistent/heliwatch.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(WatchCommand())
			err := app.Run(tt.args)
			if code := exitCode(t, err); code != exitUsage {
				t.Errorf("exit code = %d (%v), want %d", code, err, exitUsage)
			}
		})
	}
}
