package generation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/types"
)

const instrumentationName = "github.com/BaSui01/studioflow/generation"

// Pipeline stage names used to tag errors.
const (
	StageValidate  = "validate"
	StageRoute     = "route"
	StageInvoke    = "invoke"
	StagePoll      = "poll"
	StageNormalize = "normalize"
)

// Generation outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Options configures an Orchestrator. Adapters are keyed by Adapter.Name.
type Options struct {
	Router       *Router
	Adapters     []Adapter
	Poller       *Poller
	Normalizer   *Normalizer
	Observer     Observer
	UpscaleModel string
	Clock        func() time.Time
}

// Orchestrator is the single entry point of the generation core. It holds
// only immutable collaborators and is safe for concurrent use.
type Orchestrator struct {
	router       *Router
	adapters     map[string]Adapter
	poller       *Poller
	normalizer   *Normalizer
	observer     Observer
	upscaleModel string
	now          func() time.Time
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewOrchestrator wires the pipeline. Missing optional collaborators get
// their defaults.
func NewOrchestrator(opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Router == nil {
		opts.Router = NewRouter(DefaultCatalog())
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Poller == nil {
		opts.Poller = NewPoller(PollerConfig{Observer: opts.Observer}, logger)
	}
	if opts.Normalizer == nil {
		opts.Normalizer = NewNormalizer(0)
	}
	if opts.UpscaleModel == "" {
		opts.UpscaleModel = RealESRGANModel
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	adapters := make(map[string]Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Name()] = a
	}
	return &Orchestrator{
		router:       opts.Router,
		adapters:     adapters,
		poller:       opts.Poller,
		normalizer:   opts.Normalizer,
		observer:     opts.Observer,
		upscaleModel: opts.UpscaleModel,
		now:          opts.Clock,
		tracer:       otel.Tracer(instrumentationName),
		logger:       logger.With(zap.String("component", "orchestrator")),
	}
}

// Generate runs validate, route, invoke, poll (long-running families only)
// and normalize. On error the result is always nil.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	return o.run(ctx, req, "")
}

// GenerateVideo submits a video request. Models that do not route to the
// long-running-video family are rejected as invalid.
func (o *Orchestrator) GenerateVideo(ctx context.Context, prompt, model string) (*GenerationResult, error) {
	if model == "" {
		model = DefaultVideoModel
	}
	req := NewRequest(prompt, model)
	return o.run(ctx, req, FamilyVideo)
}

// Upscale enlarges image with the configured upscale model.
func (o *Orchestrator) Upscale(ctx context.Context, image string) (*GenerationResult, error) {
	req := GenerationRequest{ModelID: o.upscaleModel, InputImage: image, OutputCount: 1}
	return o.run(ctx, req, FamilyUpscale)
}

func (o *Orchestrator) run(ctx context.Context, req GenerationRequest, want Family) (*GenerationResult, error) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "generation.generate",
		trace.WithAttributes(
			attribute.String("generation.model", req.ModelID),
			attribute.String("generation.aspect_ratio", string(req.AspectRatio)),
			attribute.Int("generation.output_count", req.OutputCount),
			attribute.Bool("generation.has_image", req.HasImage()),
		))
	defer span.End()

	var target ProviderTarget
	fail := func(err error, stage string) (*GenerationResult, error) {
		tagged := types.Tag(err, stage)
		if tagged.Provider == "" && target.Provider != "" {
			tagged.Provider = target.Provider
		}
		span.RecordError(tagged)
		span.SetStatus(codes.Error, string(tagged.Code))
		o.observer.ObserveGeneration(target.Family, target.Provider, OutcomeError, o.now().Sub(start))
		o.logger.Warn("generation failed",
			zap.String("stage", tagged.Stage),
			zap.String("code", string(tagged.Code)),
			zap.String("model", req.ModelID),
			zap.String("provider", target.Provider),
			zap.String("trace_id", traceID(ctx)),
			zap.String("request_id", requestID(ctx)),
			zap.String("client_ip", clientIP(ctx)),
			zap.Error(err))
		return nil, tagged
	}

	target, err := o.router.Route(req)
	if err != nil {
		return fail(err, StageRoute)
	}
	span.AddEvent(StageRoute, trace.WithAttributes(
		attribute.String("generation.family", string(target.Family)),
		attribute.String("generation.provider", target.Provider),
		attribute.String("generation.endpoint_model", target.EndpointModel)))
	for _, note := range target.CompatibilityNotes {
		o.logger.Info("compatibility fallback applied", zap.String("model", req.ModelID), zap.String("note", note))
	}

	if want != "" && target.Family != want {
		return fail(types.NewInvalidModelError(req.ModelID).
			WithCause(fmt.Errorf("model routes to %s, expected %s", target.Family, want)), StageRoute)
	}
	if err := req.Validate(target.Family); err != nil {
		return fail(err, StageValidate)
	}

	adapter, ok := o.adapters[target.Provider]
	if !ok {
		return fail(types.NewError(types.ErrServiceUnavailable,
			fmt.Sprintf("provider %s is not configured", target.Provider)).
			WithHTTPStatus(503), StageRoute)
	}

	o.logger.Debug("invoking provider",
		zap.String("provider", target.Provider),
		zap.String("family", string(target.Family)),
		zap.String("endpoint_model", target.EndpointModel),
		zap.String("quality", string(req.QualityTier)))

	raw, err := adapter.Invoke(ctx, req, target)
	if err != nil {
		return fail(err, StageInvoke)
	}
	span.AddEvent(StageInvoke)

	if target.Family == FamilyVideo {
		raw, err = o.poll(ctx, adapter, raw)
		if err != nil {
			return fail(err, StagePoll)
		}
		span.AddEvent(StagePoll)
	}

	result, err := o.normalizer.Normalize(ctx, raw, target.Family.Kind())
	if err != nil {
		return fail(err, StageNormalize)
	}

	span.SetAttributes(attribute.Int("generation.result_count", len(result.AllURLs)))
	span.SetStatus(codes.Ok, "")
	o.observer.ObserveGeneration(target.Family, target.Provider, OutcomeSuccess, o.now().Sub(start))
	return result, nil
}

// poll hands a submitted operation to the Poller and wraps the resolved
// location as a single-item response.
func (o *Orchestrator) poll(ctx context.Context, adapter Adapter, raw RawResponse) (RawResponse, error) {
	source, ok := adapter.(OperationSource)
	if !ok {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("adapter %s cannot poll operations", adapter.Name())).WithHTTPStatus(500)
	}
	op, ok := raw.(*Operation)
	if !ok || op == nil || op.Name == "" {
		return nil, types.NewProviderError(types.ProviderMalformed, adapter.Name(), "submission returned no operation name")
	}

	handle := NewOperationHandle(op.Name, o.now())
	o.logger.Info("operation submitted",
		zap.String("operation", handle.ID),
		zap.String("provider", adapter.Name()))

	uri, err := o.poller.Run(ctx, handle, source)
	if err != nil {
		return nil, err
	}
	return Location{URL: uri}, nil
}

func requestID(ctx context.Context) string {
	id, _ := types.RequestID(ctx)
	return id
}

func clientIP(ctx context.Context) string {
	ip, _ := types.ClientIP(ctx)
	return ip
}

func traceID(ctx context.Context) string {
	if id, ok := types.TraceID(ctx); ok {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
