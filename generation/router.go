package generation

import (
	"fmt"
	"strings"

	"github.com/BaSui01/studioflow/types"
)

// ProviderTarget is the resolved destination of one request.
type ProviderTarget struct {
	Family             Family
	Provider           string
	EndpointModel      string
	CompatibilityNotes []string
}

// Router resolves model identifiers to provider targets. It holds no mutable
// state after construction and is safe for concurrent use.
type Router struct {
	catalog Catalog
}

// NewRouter creates a router over the given catalog.
func NewRouter(catalog Catalog) *Router {
	return &Router{catalog: catalog}
}

// Route resolves req to exactly one target or fails with an invalid-model error.
func (r *Router) Route(req GenerationRequest) (ProviderTarget, error) {
	id := strings.TrimSpace(req.ModelID)
	if id == "" {
		return ProviderTarget{}, types.NewInvalidModelError(req.ModelID)
	}

	endpoint := id
	var notes []string
	if alias, ok := r.catalog.Aliases[id]; ok {
		endpoint = alias
		notes = append(notes, fmt.Sprintf("alias %s resolved to %s", id, alias))
	}

	rule, ok := r.match(endpoint)
	if !ok {
		return ProviderTarget{}, types.NewInvalidModelError(id)
	}

	if rule.ModelPrefix != "" && !strings.HasPrefix(endpoint, rule.ModelPrefix) {
		endpoint = rule.ModelPrefix + endpoint
	}

	target := ProviderTarget{
		Family:             rule.Family,
		Provider:           rule.Provider,
		EndpointModel:      endpoint,
		CompatibilityNotes: notes,
	}
	if req.HasImage() && rule.Family == FamilySyncImage {
		target = r.applyImageFallback(target)
	}
	return target, nil
}

// Routable reports whether modelID resolves to a provider family.
func (r *Router) Routable(modelID string) bool {
	_, err := r.Route(GenerationRequest{ModelID: modelID})
	return err == nil
}

func (r *Router) match(endpoint string) (RouteRule, bool) {
	lower := strings.ToLower(endpoint)
	for _, rule := range r.catalog.Rules {
		for _, marker := range rule.Markers {
			if strings.Contains(lower, marker) {
				return rule, true
			}
		}
	}
	return RouteRule{}, false
}

// applyImageFallback moves a sync-image target with an image input to the
// image-edit family, swapping in the image-capable sibling where one is listed.
func (r *Router) applyImageFallback(target ProviderTarget) ProviderTarget {
	target.Family = FamilyImageEdit
	lower := strings.ToLower(target.EndpointModel)
	for _, fb := range r.catalog.ImageFallbacks {
		if strings.Contains(lower, fb.Marker) {
			target.CompatibilityNotes = append(target.CompatibilityNotes,
				fmt.Sprintf("%s rejects image inputs, switched to %s", target.EndpointModel, fb.Sibling))
			target.EndpointModel = fb.Sibling
			break
		}
	}
	return target
}
