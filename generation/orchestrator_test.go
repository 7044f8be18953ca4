package generation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/studioflow/types"
)

type mockAdapter struct {
	name     string
	invokeFn func(ctx context.Context, req GenerationRequest, target ProviderTarget) (RawResponse, error)

	mu      sync.Mutex
	targets []ProviderTarget
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Invoke(ctx context.Context, req GenerationRequest, target ProviderTarget) (RawResponse, error) {
	m.mu.Lock()
	m.targets = append(m.targets, target)
	m.mu.Unlock()
	return m.invokeFn(ctx, req, target)
}

type mockVideoAdapter struct {
	mockAdapter
	scriptedSource
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	attempts []int
}

func (o *recordingObserver) ObserveGeneration(_ Family, provider, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, provider+":"+outcome)
}

func (o *recordingObserver) ObservePollTransition(PollState, PollState) {}

func (o *recordingObserver) ObservePollAttempts(_ PollState, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempts)
}

func newTestOrchestrator(t *testing.T, obs Observer, adapters ...Adapter) *Orchestrator {
	logger := zaptest.NewLogger(t)
	return NewOrchestrator(Options{
		Adapters: adapters,
		Observer: obs,
		Poller:   NewPoller(PollerConfig{Scheduler: ImmediateScheduler{}, Observer: obs}, logger),
	}, logger)
}

func TestOrchestrator_SyncImageScenario(t *testing.T) {
	replicate := &mockAdapter{name: ProviderReplicate,
		invokeFn: func(_ context.Context, req GenerationRequest, target ProviderTarget) (RawResponse, error) {
			return Sequence{Location{URL: "https://x/1.webp"}}, nil
		}}
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, obs, replicate)

	req := GenerationRequest{Prompt: "a red cube", ModelID: "sync-image-fast", AspectRatio: AspectWide16x9, OutputCount: 1}
	got, err := o.Generate(context.Background(), req.WithDefaults())
	require.NoError(t, err)
	assert.Equal(t, "https://x/1.webp", got.PrimaryURL)
	assert.Equal(t, []string{"https://x/1.webp"}, got.AllURLs)
	assert.Equal(t, KindImage, got.Kind)

	require.Len(t, replicate.targets, 1)
	assert.Equal(t, "black-forest-labs/flux-schnell", replicate.targets[0].EndpointModel)
	assert.Equal(t, []string{"replicate:success"}, obs.outcomes)
}

func TestOrchestrator_VideoScenario(t *testing.T) {
	veo := &mockVideoAdapter{
		mockAdapter: mockAdapter{name: ProviderVeo,
			invokeFn: func(context.Context, GenerationRequest, ProviderTarget) (RawResponse, error) {
				return &Operation{Name: "models/veo-2.0-generate-001/operations/op1"}, nil
			}},
		scriptedSource: scriptedSource{
			pending: 2,
			final:   samplesDone("https://v/clip.mp4"),
			authFn:  func(u string) string { return u + "?key=test-key" },
		},
	}
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, obs, veo)

	got, err := o.Generate(context.Background(), NewRequest("a drone shot", "video-standard"))
	require.NoError(t, err)
	assert.Equal(t, "https://v/clip.mp4?key=test-key", got.PrimaryURL)
	assert.Equal(t, KindVideo, got.Kind)
	assert.Equal(t, 3, veo.polls)
	assert.Equal(t, []int{3}, obs.attempts)
}

func TestOrchestrator_VideoSafetyRejection(t *testing.T) {
	veo := &mockVideoAdapter{
		mockAdapter: mockAdapter{name: ProviderVeo,
			invokeFn: func(context.Context, GenerationRequest, ProviderTarget) (RawResponse, error) {
				return &Operation{Name: "operations/op2"}, nil
			}},
		scriptedSource: scriptedSource{
			pending: 2,
			final: &Operation{Name: "operations/op2", Done: true, Response: map[string]any{
				"generateVideoResponse": map[string]any{"raiMediaFilteredReasons": []any{"violence"}},
			}},
		},
	}
	o := newTestOrchestrator(t, nil, veo)

	got, err := o.GenerateVideo(context.Background(), "a fight", "video-standard")
	require.Error(t, err)
	assert.Nil(t, got)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrSafetyRejected, e.Code)
	assert.Equal(t, "violence", e.Reason)
	assert.Equal(t, StagePoll, e.Stage)
	assert.Equal(t, ProviderVeo, e.Provider)
	assert.GreaterOrEqual(t, e.HTTPStatus, 500)
}

func TestOrchestrator_StageTagging(t *testing.T) {
	failing := &mockAdapter{name: ProviderReplicate,
		invokeFn: func(context.Context, GenerationRequest, ProviderTarget) (RawResponse, error) {
			return nil, types.NewProviderError(types.ProviderRejected, ProviderReplicate, "NSFW content detected")
		}}
	empty := &mockAdapter{name: ProviderImagen,
		invokeFn: func(context.Context, GenerationRequest, ProviderTarget) (RawResponse, error) {
			return Sequence{}, nil
		}}
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, obs, failing, empty)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   GenerationRequest
		code  types.ErrorCode
		stage string
	}{
		{"unknown model", NewRequest("x", "dall-e-3"), types.ErrInvalidModel, StageRoute},
		{"missing prompt", NewRequest("", "sync-image-fast"), types.ErrInvalidRequest, StageValidate},
		{"too many outputs", GenerationRequest{Prompt: "x", ModelID: "sync-image-fast", OutputCount: 9}, types.ErrInvalidRequest, StageValidate},
		{"bad ratio", GenerationRequest{Prompt: "x", ModelID: "sync-image-fast", OutputCount: 1, AspectRatio: "7:3"}, types.ErrInvalidRequest, StageValidate},
		{"provider rejection", NewRequest("x", "sync-image-fast"), types.ErrProviderRejected, StageInvoke},
		{"empty output", NewRequest("x", "imagen-standard"), types.ErrExtraction, StageNormalize},
		{"adapter not configured", NewRequest("x", "video-standard"), types.ErrServiceUnavailable, StageRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.Generate(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, got)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.stage, e.Stage)
		})
	}
}

func TestOrchestrator_GenerateVideoRejectsImageModel(t *testing.T) {
	replicate := &mockAdapter{name: ProviderReplicate,
		invokeFn: func(context.Context, GenerationRequest, ProviderTarget) (RawResponse, error) {
			t.Fatal("image adapter must not be invoked")
			return nil, nil
		}}
	o := newTestOrchestrator(t, nil, replicate)

	_, err := o.GenerateVideo(context.Background(), "waves", "black-forest-labs/flux-schnell")
	assert.Equal(t, types.ErrInvalidModel, types.GetErrorCode(err))
}

func TestOrchestrator_Upscale(t *testing.T) {
	upscaler := &mockAdapter{name: ProviderUpscale,
		invokeFn: func(_ context.Context, req GenerationRequest, target ProviderTarget) (RawResponse, error) {
			assert.Equal(t, "data:image/png;base64,AAAA", req.InputImage)
			assert.Equal(t, FamilyUpscale, target.Family)
			return Scalar{Value: "https://x/big.png"}, nil
		}}
	o := newTestOrchestrator(t, nil, upscaler)

	got, err := o.Upscale(context.Background(), "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "https://x/big.png", got.PrimaryURL)

	_, err = o.Upscale(context.Background(), "")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestOrchestrator_ImageInputUsesFallbackSibling(t *testing.T) {
	replicate := &mockAdapter{name: ProviderReplicate,
		invokeFn: func(context.Context, GenerationRequest, ProviderTarget) (RawResponse, error) {
			return Scalar{Value: "https://x/edit.webp"}, nil
		}}
	o := newTestOrchestrator(t, nil, replicate)

	req := NewRequest("make it blue", "sync-image-fast")
	req.InputImage = "https://x/in.png"
	_, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, replicate.targets, 1)
	assert.Equal(t, FamilyImageEdit, replicate.targets[0].Family)
	assert.Equal(t, "black-forest-labs/flux-dev", replicate.targets[0].EndpointModel)
}
