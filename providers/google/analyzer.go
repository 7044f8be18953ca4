package google

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/types"
)

// DefaultAnalyzerModel is the Gemini model that breaks a video into scenes.
const DefaultAnalyzerModel = "gemini-2.5-pro"

const sceneBreakdownPrompt = `Analyze this video for a professional video editor.
Break it down into distinct scenes or shots.
For EACH scene, provide:
1. "time": Start timestamp (e.g., "00:05").
2. "description": A visual description.
3. "img_prompt": A highly detailed Stable Diffusion/Flux prompt to recreate a single keyframe from this scene in 4K realism.
4. "video_prompt": A prompt to regenerate this video clip using Sora/Veo.

Return ONLY raw valid JSON array of objects. No markdown. Keys: time, description, img_prompt, video_prompt.`

// Scene is one shot of an analyzed video.
type Scene struct {
	Time        string `json:"time"`
	Description string `json:"description"`
	ImagePrompt string `json:"img_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

// AnalyzerConfig tunes the upload wait and the model.
type AnalyzerConfig struct {
	Model        string
	PollInterval time.Duration
	MaxPolls     int
	// Scheduler 为 nil 时使用真实计时器
	Scheduler generation.Scheduler
}

// Analyzer uploads a local video to the Gemini Files API, waits until the
// file is processed and asks Gemini for a scene breakdown.
type Analyzer struct {
	client *genai.Client
	cfg    AnalyzerConfig
	logger *zap.Logger
}

// NewAnalyzer creates a video analyzer on the genai SDK.
func NewAnalyzer(ctx context.Context, gcfg providers.GoogleConfig, cfg AnalyzerConfig, logger *zap.Logger) (*Analyzer, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultAnalyzerModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = generation.RealScheduler{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := newGenAIClient(ctx, gcfg)
	if err != nil {
		return nil, err
	}
	return &Analyzer{client: client, cfg: cfg, logger: logger.With(zap.String("component", "analyzer"))}, nil
}

// Analyze returns the scenes of the video at path.
func (a *Analyzer) Analyze(ctx context.Context, path string) ([]Scene, error) {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	file, err := a.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: filepath.Base(path),
	})
	if err != nil {
		return nil, mapGenAIError(err)
	}
	a.logger.Info("video uploaded", zap.String("file", file.Name), zap.String("uri", file.URI))

	file, err = a.waitActive(ctx, file)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromURI(file.URI, file.MIMEType),
		genai.NewPartFromText(sceneBreakdownPrompt),
	}
	result, err := a.client.Models.GenerateContent(ctx, a.cfg.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return nil, mapGenAIError(err)
	}

	text := stripCodeFence(result.Text())
	var scenes []Scene
	if err := json.Unmarshal([]byte(text), &scenes); err != nil {
		return nil, types.NewExtractionError("scene breakdown is not a JSON array", []byte(text)).WithProvider("gemini")
	}
	a.logger.Info("video analyzed", zap.String("file", file.Name), zap.Int("scenes", len(scenes)))
	return scenes, nil
}

// waitActive polls the file until it leaves PROCESSING.
func (a *Analyzer) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	for attempt := 0; file.State == genai.FileStateProcessing; attempt++ {
		if attempt >= a.cfg.MaxPolls {
			return nil, types.NewTimeoutError(fmt.Sprintf("video %s still processing after %d checks", file.Name, attempt))
		}
		select {
		case <-ctx.Done():
			return nil, types.NewTimeoutError("video processing wait cancelled").WithCause(ctx.Err())
		case <-a.cfg.Scheduler.After(a.cfg.PollInterval):
		}
		next, err := a.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, mapGenAIError(err)
		}
		file = next
		a.logger.Debug("video processing", zap.String("file", file.Name), zap.String("state", string(file.State)))
	}
	if file.State == genai.FileStateFailed {
		msg := "video processing failed"
		if file.Error != nil && file.Error.Message != "" {
			msg += ": " + file.Error.Message
		}
		return nil, types.NewProviderError(types.ProviderRejected, "gemini", msg)
	}
	return file, nil
}

// stripCodeFence removes ```json fences the model sometimes adds.
func stripCodeFence(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
