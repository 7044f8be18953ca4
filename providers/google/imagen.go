package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/types"
)

// imagenRatios maps requested aspect ratios onto the ones Imagen accepts.
var imagenRatios = map[generation.AspectRatio]string{
	generation.AspectLandscape3x2: "4:3",
	generation.AspectPortrait4x5:  "3:4",
	generation.AspectSquare:       "1:1",
	generation.AspectWide16x9:     "16:9",
	generation.AspectTall9x16:     "9:16",
}

// ImagenAdapter serves sync-image and image-edit requests with Imagen.
type ImagenAdapter struct {
	cfg    providers.GoogleConfig
	client *http.Client
	logger *zap.Logger
}

// NewImagenAdapter creates the Imagen adapter.
func NewImagenAdapter(cfg providers.GoogleConfig, logger *zap.Logger) *ImagenAdapter {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImagenAdapter{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("adapter", generation.ProviderImagen)),
	}
}

// Name implements generation.Adapter.
func (a *ImagenAdapter) Name() string { return generation.ProviderImagen }

// MapRatio resolves the Imagen aspect ratio for r. Unmapped ratios use the
// configured fallback, or fail when strict ratios are enabled.
func (a *ImagenAdapter) MapRatio(r generation.AspectRatio) (string, error) {
	if mapped, ok := imagenRatios[r]; ok {
		return mapped, nil
	}
	if a.cfg.StrictRatios {
		return "", types.NewInvalidRequestError(fmt.Sprintf("aspect ratio %s is not supported by imagen", r))
	}
	a.logger.Warn("aspect ratio not supported, using fallback",
		zap.String("requested", string(r)),
		zap.String("fallback", a.cfg.RatioFallback))
	return a.cfg.RatioFallback, nil
}

type imagenImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type imagenInstance struct {
	Prompt string       `json:"prompt"`
	Image  *imagenImage `json:"image,omitempty"`
}

type imagenParams struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio"`
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParams     `json:"parameters"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
		RaiFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
}

// Invoke implements generation.Adapter.
func (a *ImagenAdapter) Invoke(ctx context.Context, req generation.GenerationRequest, target generation.ProviderTarget) (generation.RawResponse, error) {
	ratio, err := a.MapRatio(req.AspectRatio)
	if err != nil {
		return nil, err
	}

	instance := imagenInstance{Prompt: req.Prompt}
	if req.HasImage() {
		instance.Image = &imagenImage{BytesBase64Encoded: providers.StripDataURL(req.InputImage)}
	}
	body := imagenRequest{
		Instances:  []imagenInstance{instance},
		Parameters: imagenParams{SampleCount: req.OutputCount, AspectRatio: ratio},
	}

	a.logger.Info("generating image",
		zap.String("model", target.EndpointModel),
		zap.Int("outputs", req.OutputCount),
		zap.String("resolution", string(req.QualityTier)),
		zap.Bool("edit", req.HasImage()))

	var resp imagenResponse
	raw, err := providers.DoJSON(ctx, a.client, providers.JSONCall{
		Provider: generation.ProviderImagen,
		Method:   http.MethodPost,
		URL:      modelURL(a.cfg, target.EndpointModel, "predict"),
		Headers:  authHeaders(a.cfg),
		Body:     body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	// 批次中任一结果被安全过滤即整体失败，不返回部分结果
	seq := make(generation.Sequence, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded == "" {
			if p.RaiFilteredReason != "" {
				a.logger.Warn("prediction filtered",
					zap.String("reason", p.RaiFilteredReason),
					zap.Int("returned", len(resp.Predictions)))
				return nil, types.NewSafetyRejectedError(generation.ProviderImagen, p.RaiFilteredReason)
			}
			continue
		}
		mime := p.MimeType
		if mime == "" {
			mime = "image/png"
		}
		seq = append(seq, generation.InlinePayload{MimeType: mime, Data: p.BytesBase64Encoded})
	}
	if len(seq) == 0 {
		e := types.NewProviderError(types.ProviderMalformed, generation.ProviderImagen, "no image data returned")
		e.Excerpt = types.Excerpt(raw, types.MaxExcerptLen)
		return nil, e
	}
	return seq, nil
}

// apiKeyHeader carries the Generative Language API key. Keeping the key out
// of the URL keeps it out of *url.Error messages on transport failures.
const apiKeyHeader = "x-goog-api-key"

func authHeaders(cfg providers.GoogleConfig) map[string]string {
	return map[string]string{apiKeyHeader: cfg.APIKey}
}

// modelURL builds {base}/v1beta/{model}:{method}.
func modelURL(cfg providers.GoogleConfig, model, method string) string {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	return fmt.Sprintf("%s/v1beta/%s:%s", strings.TrimRight(cfg.BaseURL, "/"), model, method)
}
