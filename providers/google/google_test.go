package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/types"
)

func TestImagenAdapter_Invoke(t *testing.T) {
	var body map[string]any
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		assert.Empty(t, r.URL.RawQuery)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"QUJD","mimeType":"image/png"},{"bytesBase64Encoded":"REVG"}]}`))
	}))
	defer srv.Close()

	a := NewImagenAdapter(providers.GoogleConfig{APIKey: "g-key", BaseURL: srv.URL}, zap.NewNop())
	req := generation.GenerationRequest{Prompt: "a cat", AspectRatio: generation.AspectLandscape3x2, OutputCount: 2,
		InputImage: "data:image/jpeg;base64,SU1H"}
	raw, err := a.Invoke(context.Background(), req, generation.ProviderTarget{EndpointModel: "models/imagen-4.0-generate-001"})
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/imagen-4.0-generate-001:predict", path)
	assert.Equal(t, "g-key", key)
	instance := body["instances"].([]any)[0].(map[string]any)
	assert.Equal(t, "a cat", instance["prompt"])
	assert.Equal(t, "SU1H", instance["image"].(map[string]any)["bytesBase64Encoded"])
	params := body["parameters"].(map[string]any)
	assert.Equal(t, float64(2), params["sampleCount"])
	assert.Equal(t, "4:3", params["aspectRatio"])

	assert.Equal(t, generation.Sequence{
		generation.InlinePayload{MimeType: "image/png", Data: "QUJD"},
		generation.InlinePayload{MimeType: "image/png", Data: "REVG"},
	}, raw)
}

func TestImagenAdapter_MapRatio(t *testing.T) {
	lenient := NewImagenAdapter(providers.GoogleConfig{}, nil)
	tests := map[generation.AspectRatio]string{
		generation.AspectLandscape3x2:  "4:3",
		generation.AspectPortrait4x5:   "3:4",
		generation.AspectSquare:        "1:1",
		generation.AspectWide16x9:      "16:9",
		generation.AspectTall9x16:      "9:16",
		generation.AspectUltraWide21x9: "1:1",
		generation.AspectPortrait2x3:   "1:1",
	}
	for in, want := range tests {
		got, err := lenient.MapRatio(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	custom := NewImagenAdapter(providers.GoogleConfig{RatioFallback: "16:9"}, nil)
	got, err := custom.MapRatio(generation.AspectUltraWide21x9)
	require.NoError(t, err)
	assert.Equal(t, "16:9", got)

	strict := NewImagenAdapter(providers.GoogleConfig{StrictRatios: true}, nil)
	_, err = strict.MapRatio(generation.AspectUltraWide21x9)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestImagenAdapter_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"error body", `{"error":{"code":400,"message":"Invalid prompt"}}`, types.ErrProviderRejected},
		{"no predictions", `{}`, types.ErrProviderMalformed},
		{"filtered", `{"predictions":[{"raiFilteredReason":"Unable to show generated images due to safety filters"}]}`, types.ErrSafetyRejected},
		{"partially filtered", `{"predictions":[{"bytesBase64Encoded":"QUJD"},{"raiFilteredReason":"violence"}]}`, types.ErrSafetyRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewImagenAdapter(providers.GoogleConfig{APIKey: "k", BaseURL: srv.URL}, nil)
			_, err := a.Invoke(context.Background(), generation.NewRequest("x", "imagen-standard"),
				generation.ProviderTarget{EndpointModel: "models/imagen-4.0-generate-001"})
			assert.Equal(t, tt.code, types.GetErrorCode(err))
		})
	}
}

func TestImagenAdapter_PartialBatchFailsWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"QUJD","mimeType":"image/png"},{"raiFilteredReason":"violence"}]}`))
	}))
	defer srv.Close()

	a := NewImagenAdapter(providers.GoogleConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	req := generation.NewRequest("x", "imagen-standard")
	req.OutputCount = 2
	raw, err := a.Invoke(context.Background(), req, generation.ProviderTarget{EndpointModel: "models/imagen-4.0-generate-001"})
	require.Error(t, err)
	assert.Nil(t, raw)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrSafetyRejected, e.Code)
	assert.Equal(t, "violence", e.Reason)
}

func TestGoogleAdapters_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	cfg := providers.GoogleConfig{APIKey: "SUPER-SECRET-KEY", BaseURL: base, Timeout: time.Second}
	target := generation.ProviderTarget{EndpointModel: "models/imagen-4.0-generate-001"}

	_, err := NewImagenAdapter(cfg, nil).Invoke(context.Background(), generation.NewRequest("x", "imagen-standard"), target)
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderTransport, types.GetErrorCode(err))
	assert.NotContains(t, err.Error(), "SUPER-SECRET-KEY")

	veo := NewVeoAdapter(cfg, nil)
	_, err = veo.Invoke(context.Background(), generation.NewRequest("x", "video-standard"),
		generation.ProviderTarget{EndpointModel: "models/veo-2.0-generate-001"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SUPER-SECRET-KEY")

	_, err = veo.PollOperation(context.Background(), "models/veo-2.0-generate-001/operations/op1")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SUPER-SECRET-KEY")
}

// veoServer answers the submit call and reports "processing" for the first
// pending status queries, then final.
func veoServer(t *testing.T, pending int32, final string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "a drone shot", body["instances"].([]any)[0].(map[string]any)["prompt"])
			_, _ = w.Write([]byte(`{"name":"models/veo-2.0-generate-001/operations/op1"}`))
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/operations/op1"):
			assert.NotEmpty(t, r.Header.Get("x-goog-api-key"))
			n := atomic.AddInt32(&polls, 1)
			if n <= pending {
				_, _ = w.Write([]byte(`{"name":"models/veo-2.0-generate-001/operations/op1"}`))
				return
			}
			_, _ = w.Write([]byte(final))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newVideoOrchestrator(a *VeoAdapter) *generation.Orchestrator {
	return generation.NewOrchestrator(generation.Options{
		Adapters: []generation.Adapter{a},
		Poller:   generation.NewPoller(generation.PollerConfig{Scheduler: generation.ImmediateScheduler{}}, nil),
	}, nil)
}

func TestVeo_EndToEndAppendsKey(t *testing.T) {
	srv, polls := veoServer(t, 2, `{"name":"op1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://v/clip.mp4"}}]}}}`)
	a := NewVeoAdapter(providers.GoogleConfig{APIKey: "secret", BaseURL: srv.URL, AuthenticatedHosts: []string{"v"}}, nil)

	res, err := newVideoOrchestrator(a).Generate(context.Background(), generation.NewRequest("a drone shot", "video-standard"))
	require.NoError(t, err)
	assert.Equal(t, "https://v/clip.mp4?key=secret", res.PrimaryURL)
	assert.Equal(t, generation.KindVideo, res.Kind)
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
}

func TestVeo_SafetyRejection(t *testing.T) {
	srv, _ := veoServer(t, 2, `{"name":"op1","done":true,"response":{"generateVideoResponse":{"raiMediaFilteredCount":1,"raiMediaFilteredReasons":["violence"]}}}`)
	a := NewVeoAdapter(providers.GoogleConfig{APIKey: "secret", BaseURL: srv.URL}, nil)

	res, err := newVideoOrchestrator(a).GenerateVideo(context.Background(), "a drone shot", "video-standard")
	require.Error(t, err)
	assert.Nil(t, res)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrSafetyRejected, e.Code)
	assert.Equal(t, "violence", e.Reason)
}

func TestVeo_PollOperationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"op9","done":true,"error":{"code":3,"message":"prompt blocked"}}`))
	}))
	defer srv.Close()

	a := NewVeoAdapter(providers.GoogleConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second}, nil)
	op, err := a.PollOperation(context.Background(), "op9")
	require.NoError(t, err)
	require.NotNil(t, op.Error)
	assert.Equal(t, "prompt blocked", op.Error.Message)
	assert.True(t, op.Done)
}

func TestVeo_AuthorizeLocation(t *testing.T) {
	a := NewVeoAdapter(providers.GoogleConfig{APIKey: "k1"}, nil)

	tests := []struct {
		in   string
		want string
	}{
		{"https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media", "https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media&key=k1"},
		{"https://generativelanguage.googleapis.com/v1beta/files/abc", "https://generativelanguage.googleapis.com/v1beta/files/abc?key=k1"},
		{"https://generativelanguage.googleapis.com/f?key=other", "https://generativelanguage.googleapis.com/f?key=other"},
		{"https://storage.example.com/clip.mp4", "https://storage.example.com/clip.mp4"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.AuthorizeLocation(tt.in))
	}
}

func TestEnhancer_GenerateContent(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  A moody cube at dusk. "}]}}]}`))
	}))
	defer srv.Close()

	e, err := NewEnhancer(context.Background(), providers.GoogleConfig{APIKey: "k", BaseURL: srv.URL}, "", nil)
	require.NoError(t, err)

	out, err := e.Enhance(context.Background(), "cube")
	require.NoError(t, err)
	assert.Equal(t, "A moody cube at dusk.", out)
	assert.Contains(t, path, "gemini-2.5-flash:generateContent")
}
