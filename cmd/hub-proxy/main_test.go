package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/camlf/academic-hub/internal/testutil"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestGetEnv(t *testing.T) {
	t.Setenv("HUB_PROXY_TEST", "value")

	if got := getEnv("HUB_PROXY_TEST", "default"); got != "value" {
		t.Errorf("getEnv() = %q, want %q", got, "value")
	}
	if got := getEnv("HUB_PROXY_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q", got, "default")
	}
}

func TestRun(t *testing.T) {
	mock := testutil.NewMockHub()
	defer mock.Close()
	mr := miniredis.RunT(t)

	t.Setenv("HUB_BASE_URL", mock.URL())
	t.Setenv("HUB_TOKEN", "secret")
	t.Setenv("REDIS_URL", mr.Addr())
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("HUB_WORKERS", "")

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, "", addr)
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/ready")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not start: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d (%s)", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HUB_BASE_URL", "")
	t.Setenv("HUB_TOKEN", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("HUB_WORKERS", "")

	if err := run(context.Background(), "", freeAddr(t)); err == nil {
		t.Error("Expected error for missing base url")
	}
}
