package replicate

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/generation"
)

// Fixed output encoding for image predictions.
const (
	outputFormat  = "webp"
	outputQuality = 90
)

// ImageAdapter serves the sync-image and image-edit families on Replicate.
type ImageAdapter struct {
	client *Client
	logger *zap.Logger
}

// NewImageAdapter creates the Replicate image adapter.
func NewImageAdapter(client *Client, logger *zap.Logger) *ImageAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageAdapter{client: client, logger: logger.With(zap.String("adapter", generation.ProviderReplicate))}
}

// Name implements generation.Adapter.
func (a *ImageAdapter) Name() string { return generation.ProviderReplicate }

// Invoke runs one prediction. Replicate accepts the caller's aspect ratio
// as is, so no ratio mapping happens here.
func (a *ImageAdapter) Invoke(ctx context.Context, req generation.GenerationRequest, target generation.ProviderTarget) (generation.RawResponse, error) {
	input := map[string]any{
		"prompt":         req.Prompt,
		"aspect_ratio":   string(req.AspectRatio),
		"num_outputs":    req.OutputCount,
		"output_format":  outputFormat,
		"output_quality": outputQuality,
	}
	if req.HasImage() {
		input["image"] = req.InputImage
	}

	a.logger.Info("generating image",
		zap.String("model", target.EndpointModel),
		zap.String("family", string(target.Family)),
		zap.Int("outputs", req.OutputCount),
		zap.String("resolution", string(req.QualityTier)))

	pred, _, err := a.client.Run(ctx, target.EndpointModel, input)
	if err != nil {
		return nil, err
	}
	return DecodeOutput(pred.Output)
}

// UpscaleAdapter serves the upscale family with Real-ESRGAN.
type UpscaleAdapter struct {
	client      *Client
	scale       int
	faceEnhance bool
	logger      *zap.Logger
}

// NewUpscaleAdapter creates the upscale adapter with the fixed enhancement
// parameters (4x, face enhancement on).
func NewUpscaleAdapter(client *Client, logger *zap.Logger) *UpscaleAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpscaleAdapter{
		client:      client,
		scale:       4,
		faceEnhance: true,
		logger:      logger.With(zap.String("adapter", generation.ProviderUpscale)),
	}
}

// Name implements generation.Adapter.
func (a *UpscaleAdapter) Name() string { return generation.ProviderUpscale }

// Invoke implements generation.Adapter.
func (a *UpscaleAdapter) Invoke(ctx context.Context, req generation.GenerationRequest, target generation.ProviderTarget) (generation.RawResponse, error) {
	a.logger.Info("upscaling image", zap.String("model", target.EndpointModel))
	pred, _, err := a.client.Run(ctx, target.EndpointModel, map[string]any{
		"image":        req.InputImage,
		"scale":        a.scale,
		"face_enhance": a.faceEnhance,
	})
	if err != nil {
		return nil, err
	}
	return DecodeOutput(pred.Output)
}
