package generation

// Family is a backend family. Every routed request lands in exactly one.
type Family string

const (
	FamilySyncImage Family = "sync-image"
	FamilyImageEdit Family = "image-edit"
	FamilyUpscale   Family = "upscale"
	FamilyVideo     Family = "long-running-video"
)

// Kind returns the result kind produced by the family.
func (f Family) Kind() Kind {
	if f == FamilyVideo {
		return KindVideo
	}
	return KindImage
}

// Provider adapter names.
const (
	ProviderReplicate = "replicate"
	ProviderImagen    = "imagen"
	ProviderUpscale   = "upscale"
	ProviderVeo       = "veo"
)

// RealESRGANModel is the pinned upscaler version.
const RealESRGANModel = "nightmareai/real-esrgan:b3ef194191d13140337468c916c2c5b96dd0cb06dffc032a022a31807f6a5ea8"

// RouteRule maps a model namespace to a family and adapter. A rule matches
// when any of its markers occurs in the lower-cased model identifier.
type RouteRule struct {
	Name     string
	Markers  []string
	Family   Family
	Provider string
	// ModelPrefix is prepended to endpoint models that lack it.
	ModelPrefix string
}

// ImageFallback substitutes an image-capable sibling for a model that rejects
// image inputs.
type ImageFallback struct {
	Marker  string
	Sibling string
}

// Catalog is the static compatibility table the Router consults.
type Catalog struct {
	Aliases        map[string]string
	Rules          []RouteRule
	ImageFallbacks []ImageFallback
}

// DefaultAliases are the short model names accepted by the request surface.
func DefaultAliases() map[string]string {
	return map[string]string{
		"sync-image-fast":    "black-forest-labs/flux-schnell",
		"sync-image-quality": "black-forest-labs/flux-dev",
		"imagen-standard":    "models/imagen-4.0-generate-001",
		"upscale-standard":   RealESRGANModel,
		"video-standard":     "models/veo-2.0-generate-001",
		"video-fast":         "models/veo-3.0-fast-generate-001",
	}
}

// DefaultRules is the ordered namespace table. Order matters: video and Google
// image names also contain "/" and must win over the Replicate namespace.
func DefaultRules() []RouteRule {
	return []RouteRule{
		{Name: "upscale", Markers: []string{"real-esrgan", "upscale"}, Family: FamilyUpscale, Provider: ProviderUpscale},
		{Name: "video", Markers: []string{"veo", "video-"}, Family: FamilyVideo, Provider: ProviderVeo, ModelPrefix: "models/"},
		{Name: "google-image", Markers: []string{"imagen", "banana", "gemini-3-pro-image"}, Family: FamilySyncImage, Provider: ProviderImagen, ModelPrefix: "models/"},
		{Name: "replicate-image", Markers: []string{"/"}, Family: FamilySyncImage, Provider: ProviderReplicate},
	}
}

// DefaultImageFallbacks lists Replicate models known to reject image inputs.
func DefaultImageFallbacks() []ImageFallback {
	return []ImageFallback{
		{Marker: "flux-schnell", Sibling: "black-forest-labs/flux-dev"},
	}
}

// DefaultCatalog returns the built-in compatibility table.
func DefaultCatalog() Catalog {
	return Catalog{
		Aliases:        DefaultAliases(),
		Rules:          DefaultRules(),
		ImageFallbacks: DefaultImageFallbacks(),
	}
}

// WithAliases returns a copy of c with extra aliases layered over the defaults.
func (c Catalog) WithAliases(extra map[string]string) Catalog {
	merged := make(map[string]string, len(c.Aliases)+len(extra))
	for k, v := range c.Aliases {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	c.Aliases = merged
	return c
}
