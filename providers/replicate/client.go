package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/types"
)

// Prediction statuses reported by Replicate.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Prediction is the subset of a Replicate prediction the adapters read.
type Prediction struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Version string          `json:"version"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   any             `json:"error"`
	Logs    string          `json:"logs"`
}

// Client is a minimal Replicate HTTP API client. One instance is shared by
// all Replicate-backed adapters for the process lifetime.
type Client struct {
	cfg    providers.ReplicateConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a Replicate client.
func NewClient(cfg providers.ReplicateConfig, logger *zap.Logger) *Client {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: providers.NewHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", "replicate")),
	}
}

// ModelRef is a parsed owner/name[:version] identifier.
type ModelRef struct {
	Owner   string
	Name    string
	Version string
}

// ParseModelRef splits a Replicate model identifier.
func ParseModelRef(id string) (ModelRef, error) {
	ref := ModelRef{}
	base := id
	if i := strings.LastIndex(id, ":"); i >= 0 {
		base, ref.Version = id[:i], id[i+1:]
	}
	owner, name, ok := strings.Cut(base, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return ModelRef{}, types.NewInvalidModelError(id)
	}
	ref.Owner, ref.Name = owner, name
	return ref, nil
}

func (c *Client) headers(wait bool) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + c.cfg.APIToken}
	if wait {
		h["Prefer"] = "wait=" + strconv.Itoa(c.cfg.WaitSeconds)
	}
	return h
}

// Run creates a prediction and waits for it inside Replicate's synchronous
// window. A prediction that is still running afterwards is reported as a
// timeout; failed or canceled predictions are rejections.
func (c *Client) Run(ctx context.Context, model string, input map[string]any) (*Prediction, []byte, error) {
	ref, err := ParseModelRef(model)
	if err != nil {
		return nil, nil, err
	}

	call := providers.JSONCall{
		Provider: "replicate",
		Method:   http.MethodPost,
		Headers:  c.headers(true),
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if ref.Version != "" {
		call.URL = base + "/v1/predictions"
		call.Body = map[string]any{"version": ref.Version, "input": input}
	} else {
		call.URL = fmt.Sprintf("%s/v1/models/%s/%s/predictions", base, ref.Owner, ref.Name)
		call.Body = map[string]any{"input": input}
	}

	var pred Prediction
	raw, err := providers.DoJSON(ctx, c.client, call, &pred)
	if err != nil {
		return nil, raw, err
	}
	c.logger.Debug("prediction returned",
		zap.String("id", pred.ID),
		zap.String("model", model),
		zap.String("status", pred.Status))

	switch pred.Status {
	case StatusSucceeded:
		return &pred, raw, nil
	case StatusFailed, StatusCanceled:
		msg := fmt.Sprintf("prediction %s %s", pred.ID, pred.Status)
		if pred.Error != nil {
			msg = fmt.Sprintf("%s: %v", msg, pred.Error)
		}
		return nil, raw, types.NewProviderError(types.ProviderRejected, "replicate", msg)
	case StatusStarting, StatusProcessing:
		// 等待窗口结束即返回 504，同步路由不再继续轮询
		return nil, raw, types.NewTimeoutError(fmt.Sprintf(
			"prediction %s still %s after %ds wait window", pred.ID, pred.Status, c.cfg.WaitSeconds)).
			WithProvider("replicate")
	default:
		e := types.NewProviderError(types.ProviderMalformed, "replicate",
			fmt.Sprintf("prediction has unknown status %q", pred.Status))
		e.Excerpt = types.Excerpt(raw, types.MaxExcerptLen)
		return nil, raw, e
	}
}

// GetModel returns the raw model metadata, including latest_version.
func (c *Client) GetModel(ctx context.Context, owner, name string) (map[string]any, error) {
	var out map[string]any
	_, err := providers.DoJSON(ctx, c.client, providers.JSONCall{
		Provider: "replicate",
		Method:   http.MethodGet,
		URL:      fmt.Sprintf("%s/v1/models/%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), owner, name),
		Headers:  c.headers(false),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
