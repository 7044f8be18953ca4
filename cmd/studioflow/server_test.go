package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/api"
	"github.com/BaSui01/studioflow/api/handlers"
	"github.com/BaSui01/studioflow/config"
	"github.com/BaSui01/studioflow/types"
)

// fakeReplicate answers synchronous predictions and model lookups.
func fakeReplicate(t *testing.T, predictions *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/models/black-forest-labs/flux-schnell/predictions":
			atomic.AddInt32(predictions, 1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://replicate.delivery/a.webp"]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/models/nightmareai/real-esrgan":
			_, _ = w.Write([]byte(`{"name":"real-esrgan","description":"upscaler","latest_version":{"id":"v4","openapi_schema":{}}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/models/acme/painter":
			_, _ = w.Write([]byte(`{"name":"painter","description":"paints","latest_version":{"id":"v9","openapi_schema":{"type":"object"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func startTestServer(t *testing.T, replicateURL, redisAddr string) (string, *Server) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Providers.Replicate.APIToken = "r8-test"
	cfg.Providers.Replicate.BaseURL = replicateURL
	cfg.Redis.Addr = redisAddr
	cfg.Frames.UploadDir = t.TempDir()
	cfg.Frames.FramesDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Frames.FramesDir, "clip.mp4_00-00-01.jpg"), []byte("jpeg"), 0o644))

	s := NewServer(cfg, zap.NewNop(), nil)
	require.NoError(t, s.Start())
	t.Cleanup(s.Shutdown)

	_, port, err := net.SplitHostPort(s.httpManager.ListenAddr())
	require.NoError(t, err)
	return "http://127.0.0.1:" + port, s
}

func TestServer_Routes(t *testing.T) {
	var predictions int32
	rep := fakeReplicate(t, &predictions)
	mr := miniredis.RunT(t)
	base, _ := startTestServer(t, rep.URL, mr.Addr())

	post := func(path, body string, header map[string]string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, base+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}
	get := func(path string) *http.Response {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("service health", func(t *testing.T) {
		resp := get("/api/health")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var status api.ServiceStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, api.ServiceStatus{Status: "ok", Service: handlers.ServiceName}, status)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("readiness pings redis", func(t *testing.T) {
		resp := get("/ready")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var status handlers.HealthStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "pass", status.Checks["redis"].Status)
		// 未配置 Google key：仅降级
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "warn", status.Checks["provider_keys"].Status)
		assert.Equal(t, "missing API key: google", status.Checks["provider_keys"].Message)
	})

	t.Run("generate replays by idempotency key", func(t *testing.T) {
		body := `{"prompt":"a red cube","model":"sync-image-fast"}`
		key := map[string]string{handlers.IdempotencyHeader: "retry-1"}

		first := post("/api/generate", body, key)
		require.Equal(t, http.StatusOK, first.StatusCode)
		var resp api.GenerateResponse
		require.NoError(t, json.NewDecoder(first.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "https://replicate.delivery/a.webp", resp.URL)

		second := post("/api/generate", body, key)
		require.Equal(t, http.StatusOK, second.StatusCode)
		assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
		assert.Equal(t, int32(1), atomic.LoadInt32(&predictions))

		conflict := post("/api/generate", `{"prompt":"a blue cube","model":"sync-image-fast"}`, key)
		assert.Equal(t, http.StatusConflict, conflict.StatusCode)
	})

	t.Run("invalid model", func(t *testing.T) {
		resp := post("/api/generate", `{"prompt":"x","model":"no-such-model"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var e api.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
		assert.Equal(t, string(types.ErrInvalidModel), e.Code)
	})

	t.Run("inspect model", func(t *testing.T) {
		resp := get("/api/inspect-model?model=acme/painter")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var m api.InspectModelResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
		assert.Equal(t, "painter", m.Name)
		assert.Equal(t, "v9", m.LatestVersionID)
	})

	t.Run("frame is served statically", func(t *testing.T) {
		resp := get("/frames/clip.mp4_00-00-01.jpg")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "jpeg", string(data))
	})

	t.Run("extract frame of missing video", func(t *testing.T) {
		resp := post("/api/extract-frame", `{"videoFilename":"missing.mp4","timestamp":"00:00:01"}`, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("analyze video that was never uploaded", func(t *testing.T) {
		resp := post("/api/analyze-video", `{"videoFilename":"missing.mp4"}`, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("inspect model defaults to upscaler", func(t *testing.T) {
		resp := get("/api/inspect-model")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var info api.InspectModelResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		assert.Equal(t, "real-esrgan", info.Name)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp := get("/api/nope")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var e api.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
		assert.Equal(t, string(types.ErrNotFound), e.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		resp := get("/api/generate")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
