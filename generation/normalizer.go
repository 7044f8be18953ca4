package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/studioflow/types"
)

// Normalizer turns any RawResponse into a GenerationResult. It keeps no state
// and is safe for concurrent use.
type Normalizer struct {
	// maxConcurrency bounds concurrent accessor resolution within one result.
	maxConcurrency int
}

// NewNormalizer creates a normalizer. A non-positive limit means unbounded.
func NewNormalizer(maxConcurrency int) *Normalizer {
	return &Normalizer{maxConcurrency: maxConcurrency}
}

// Normalize resolves raw into an ordered, non-empty list of references.
// If any item cannot be resolved the whole result fails.
func (n *Normalizer) Normalize(ctx context.Context, raw RawResponse, kind Kind) (*GenerationResult, error) {
	var items []Item
	switch v := raw.(type) {
	case nil:
		return nil, types.NewExtractionError("provider returned no output", nil)
	case Sequence:
		items = v
	case Item:
		items = []Item{v}
	case *Operation:
		return nil, types.NewExtractionError("operation descriptor reached the normalizer", v.Raw)
	default:
		return nil, types.NewExtractionError(fmt.Sprintf("unsupported response type %T", raw), nil)
	}

	if len(items) == 0 {
		return nil, types.NewExtractionError("provider returned an empty output list", nil)
	}

	urls := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if n.maxConcurrency > 0 {
		g.SetLimit(n.maxConcurrency)
	}
	for i, it := range items {
		g.Go(func() error {
			u, err := extractItem(gctx, it)
			if err != nil {
				return err
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &GenerationResult{PrimaryURL: urls[0], AllURLs: urls, Kind: kind}, nil
}

// extractItem applies the single-item rule: accessor, then location, then
// string coercion. Inline bytes become a data URL.
func extractItem(ctx context.Context, it Item) (string, error) {
	var (
		u   string
		err error
	)
	switch v := it.(type) {
	case Accessor:
		if v.Resolve == nil {
			return "", types.NewExtractionError("accessor has no resolver", nil)
		}
		u, err = v.Resolve(ctx)
		if err != nil {
			if _, ok := types.AsError(err); ok {
				return "", err
			}
			return "", types.NewExtractionError("resolving output location", nil).WithCause(err)
		}
	case Location:
		u = v.URL
	case InlinePayload:
		if v.Data == "" {
			return "", types.NewExtractionError("inline payload is empty", nil)
		}
		mime := v.MimeType
		if mime == "" {
			mime = "image/png"
		}
		u = "data:" + mime + ";base64," + v.Data
	case Scalar:
		u, err = coerce(v.Value)
		if err != nil {
			return "", err
		}
	default:
		return "", types.NewExtractionError(fmt.Sprintf("unsupported item type %T", it), nil)
	}

	u = strings.TrimSpace(u)
	if u == "" {
		return "", types.NewExtractionError("output item resolved to an empty reference", nil)
	}
	return u, nil
}

func coerce(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", types.NewExtractionError("output item is null", nil)
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case map[string]any, []any:
		b, _ := json.Marshal(s)
		return "", types.NewExtractionError("output item has no recognizable location", b)
	default:
		return fmt.Sprint(s), nil
	}
}
