package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/generation"
	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/types"
)

// VeoAdapter submits long-running video generations and answers the
// Poller's status queries.
type VeoAdapter struct {
	cfg       providers.GoogleConfig
	client    *http.Client
	authHosts map[string]struct{}
	logger    *zap.Logger
}

var _ generation.LongRunningAdapter = (*VeoAdapter)(nil)

// NewVeoAdapter creates the Veo adapter.
func NewVeoAdapter(cfg providers.GoogleConfig, logger *zap.Logger) *VeoAdapter {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	hosts := make(map[string]struct{}, len(cfg.AuthenticatedHosts))
	for _, h := range cfg.AuthenticatedHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &VeoAdapter{
		cfg:       cfg,
		client:    providers.NewHTTPClient(cfg.Timeout),
		authHosts: hosts,
		logger:    logger.With(zap.String("adapter", generation.ProviderVeo)),
	}
}

// Name implements generation.Adapter.
func (a *VeoAdapter) Name() string { return generation.ProviderVeo }

type veoRequest struct {
	Instances  []veoInstance  `json:"instances"`
	Parameters map[string]any `json:"parameters"`
}

type veoInstance struct {
	Prompt string `json:"prompt"`
}

// Invoke submits the generation and returns the operation descriptor
// without waiting for it.
func (a *VeoAdapter) Invoke(ctx context.Context, req generation.GenerationRequest, target generation.ProviderTarget) (generation.RawResponse, error) {
	a.logger.Info("submitting video generation", zap.String("model", target.EndpointModel))

	var op struct {
		Name string `json:"name"`
	}
	raw, err := providers.DoJSON(ctx, a.client, providers.JSONCall{
		Provider: generation.ProviderVeo,
		Method:   http.MethodPost,
		URL:      modelURL(a.cfg, target.EndpointModel, "predictLongRunning"),
		Headers:  authHeaders(a.cfg),
		Body: veoRequest{
			Instances:  []veoInstance{{Prompt: req.Prompt}},
			Parameters: map[string]any{},
		},
	}, &op)
	if err != nil {
		return nil, err
	}
	if op.Name == "" {
		e := types.NewProviderError(types.ProviderMalformed, generation.ProviderVeo, "no operation name returned")
		e.Excerpt = types.Excerpt(raw, types.MaxExcerptLen)
		return nil, e
	}
	a.logger.Info("video operation started", zap.String("operation", op.Name))
	return &generation.Operation{Name: op.Name, Raw: raw}, nil
}

type operationStatus struct {
	Name     string         `json:"name"`
	Done     bool           `json:"done"`
	Response map[string]any `json:"response"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// PollOperation implements generation.OperationSource. An error block in
// the operation is returned in the descriptor, not as a Go error.
func (a *VeoAdapter) PollOperation(ctx context.Context, name string) (*generation.Operation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1beta/%s", strings.TrimRight(a.cfg.BaseURL, "/"), name), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "building poll request").WithCause(err).WithHTTPStatus(500)
	}
	req.Header.Set(apiKeyHeader, a.cfg.APIKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, types.NewProviderError(types.ProviderTransport, generation.ProviderVeo, "operation status request failed").WithCause(providers.RedactURL(err))
	}
	defer resp.Body.Close()

	var status operationStatus
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderError(types.ProviderTransport, generation.ProviderVeo, "reading operation status").WithCause(err)
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		if resp.StatusCode >= 400 {
			return nil, providers.MapHTTPError(generation.ProviderVeo, resp.StatusCode, providers.ReadErrMsg(raw))
		}
		e := types.NewProviderError(types.ProviderMalformed, generation.ProviderVeo, "undecodable operation status").WithCause(err)
		e.Excerpt = types.Excerpt(raw, types.MaxExcerptLen)
		return nil, e
	}

	op := &generation.Operation{Name: status.Name, Done: status.Done, Response: status.Response, Raw: raw}
	if op.Name == "" {
		op.Name = name
	}
	if status.Error != nil {
		op.Error = &generation.OperationError{Code: status.Error.Code, Message: status.Error.Message}
	} else if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(generation.ProviderVeo, resp.StatusCode, providers.ReadErrMsg(raw))
	}
	return op, nil
}

// AuthorizeLocation appends the API key to links on authenticated hosts so
// the caller can download the result directly.
func (a *VeoAdapter) AuthorizeLocation(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return uri
	}
	if _, ok := a.authHosts[strings.ToLower(u.Hostname())]; !ok {
		return uri
	}
	if strings.Contains(uri, "key=") {
		return uri
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "key=" + url.QueryEscape(a.cfg.APIKey)
}
