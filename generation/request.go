package generation

import (
	"fmt"
	"strings"

	"github.com/BaSui01/studioflow/types"
)

// AspectRatio is the requested output frame ratio.
type AspectRatio string

const (
	AspectSquare        AspectRatio = "1:1"
	AspectLandscape3x2  AspectRatio = "3:2"
	AspectPortrait2x3   AspectRatio = "2:3"
	AspectLandscape4x3  AspectRatio = "4:3"
	AspectPortrait3x4   AspectRatio = "3:4"
	AspectPortrait4x5   AspectRatio = "4:5"
	AspectLandscape5x4  AspectRatio = "5:4"
	AspectWide16x9      AspectRatio = "16:9"
	AspectTall9x16      AspectRatio = "9:16"
	AspectUltraWide21x9 AspectRatio = "21:9"
)

var knownAspectRatios = map[AspectRatio]struct{}{
	AspectSquare: {}, AspectLandscape3x2: {}, AspectPortrait2x3: {},
	AspectLandscape4x3: {}, AspectPortrait3x4: {}, AspectPortrait4x5: {},
	AspectLandscape5x4: {}, AspectWide16x9: {}, AspectTall9x16: {},
	AspectUltraWide21x9: {},
}

// Valid reports whether r is one of the supported ratios.
func (r AspectRatio) Valid() bool {
	_, ok := knownAspectRatios[r]
	return ok
}

// QualityTier is the requested output resolution. Providers only log it.
type QualityTier string

const (
	Quality1K QualityTier = "1K"
	Quality2K QualityTier = "2K"
	Quality4K QualityTier = "4K"
)

// Valid reports whether q is a known tier.
func (q QualityTier) Valid() bool {
	switch q {
	case Quality1K, Quality2K, Quality4K:
		return true
	}
	return false
}

// Request defaults applied by the HTTP surface and by NewRequest.
const (
	DefaultImageModel  = "black-forest-labs/flux-schnell"
	DefaultVideoModel  = "models/veo-2.0-generate-001"
	DefaultAspectRatio = AspectLandscape3x2
	DefaultQuality     = Quality1K
	MaxOutputCount     = 4
)

// GenerationRequest is one abstract generate call. It is a value type; callers
// build it once and hand copies to the pipeline.
type GenerationRequest struct {
	Prompt      string
	ModelID     string
	AspectRatio AspectRatio
	// InputImage is a data URL, bare base64 bytes or a remote URL.
	InputImage  string
	OutputCount int
	QualityTier QualityTier
}

// NewRequest returns a request with the documented defaults filled in.
func NewRequest(prompt, modelID string) GenerationRequest {
	req := GenerationRequest{Prompt: prompt, ModelID: modelID}
	return req.WithDefaults()
}

// WithDefaults returns a copy of r with zero fields defaulted.
func (r GenerationRequest) WithDefaults() GenerationRequest {
	if strings.TrimSpace(r.ModelID) == "" {
		r.ModelID = DefaultImageModel
	}
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	if r.OutputCount == 0 {
		r.OutputCount = 1
	}
	if r.QualityTier == "" {
		r.QualityTier = DefaultQuality
	}
	return r
}

// HasImage reports whether the request carries an input image.
func (r GenerationRequest) HasImage() bool {
	return strings.TrimSpace(r.InputImage) != ""
}

// Validate checks the caller-controlled fields for the resolved family.
func (r GenerationRequest) Validate(family Family) error {
	if family == FamilyUpscale {
		if !r.HasImage() {
			return types.NewInvalidRequestError("image is required")
		}
		return nil
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return types.NewInvalidRequestError("prompt is required")
	}
	if r.AspectRatio != "" && !r.AspectRatio.Valid() {
		return types.NewInvalidRequestError("unsupported aspect ratio " + string(r.AspectRatio))
	}
	if r.OutputCount < 1 || r.OutputCount > MaxOutputCount {
		return types.NewInvalidRequestError(fmt.Sprintf("numOutputs must be between 1 and %d", MaxOutputCount))
	}
	if r.QualityTier != "" && !r.QualityTier.Valid() {
		return types.NewInvalidRequestError("unsupported resolution " + string(r.QualityTier))
	}
	return nil
}
