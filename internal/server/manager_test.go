package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig_CoversVideoPolling(t *testing.T) {
	cfg := DefaultConfig()
	// Writes must outlive the longest video poll (60 x 3s).
	assert.Equal(t, 180*time.Second, cfg.RequestBudget)
	assert.Greater(t, cfg.WriteTimeout, cfg.RequestBudget)
	assert.True(t, cfg.CoversBudget())
	assert.Equal(t, "api", cfg.Name)
	assert.Equal(t, ":3002", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestConfig_CoversBudget(t *testing.T) {
	tests := []struct {
		name   string
		write  time.Duration
		budget time.Duration
		want   bool
	}{
		{"longer write", 240 * time.Second, 180 * time.Second, true},
		{"equal", 180 * time.Second, 180 * time.Second, false},
		{"shorter write", 30 * time.Second, 180 * time.Second, false},
		{"no write timeout", 0, 180 * time.Second, true},
		{"no budget", 30 * time.Second, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{WriteTimeout: tt.write, RequestBudget: tt.budget}
			assert.Equal(t, tt.want, cfg.CoversBudget())
		})
	}
}

func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager(handler, cfg, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestManager_Lifecycle(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	assert.Empty(t, m.ListenAddr())
	assert.False(t, m.Closed())

	require.NoError(t, m.Start())
	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	resp, err := http.Get("http://" + m.ListenAddr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int64(0), m.InFlight())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, m.Closed())

	err = m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_DrainsInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte("done"))
	}))
	require.NoError(t, m.Start())

	got := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + m.ListenAddr() + "/generate")
		if err != nil {
			got <- err.Error()
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		got <- string(body)
	}()

	<-entered
	assert.Equal(t, int64(1), m.InFlight())

	shut := make(chan error, 1)
	go func() { shut <- m.Shutdown(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-shut)
	assert.Equal(t, "done", <-got)
	assert.Equal(t, int64(0), m.InFlight())
}

func TestManager_ShutdownReportsAbandonedRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 50 * time.Millisecond
	m := NewManager(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}), cfg, zap.NewNop())
	require.NoError(t, m.Start())

	go func() {
		resp, err := http.Get("http://" + m.ListenAddr() + "/video")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 requests abandoned")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Errors(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())

	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected error %v", err)
	default:
	}
}
