package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studioflow/types"
)

// PollState is a state of the polling state machine.
type PollState string

const (
	PollSubmitted PollState = "submitted"
	PollPolling   PollState = "polling"
	PollDone      PollState = "done"
	PollRejected  PollState = "rejected"
	PollFailed    PollState = "failed"
	PollTimedOut  PollState = "timed-out"
)

// handleState maps machine states onto the handle lifecycle.
func (s PollState) handleState() HandleState {
	switch s {
	case PollDone:
		return HandleDone
	case PollRejected:
		return HandleRejected
	case PollFailed:
		return HandleFailed
	case PollTimedOut:
		return HandleTimedOut
	default:
		return HandlePending
	}
}

const (
	DefaultPollInterval    = 3 * time.Second
	DefaultPollMaxAttempts = 60

	progressLogEvery = 5
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Scheduler   Scheduler
	Observer    Observer
	// OnTransition is called after every state change.
	OnTransition func(h *OperationHandle, from, to PollState)
}

// Poller drives an OperationHandle to a terminal state.
type Poller struct {
	interval     time.Duration
	maxAttempts  int
	scheduler    Scheduler
	observer     Observer
	onTransition func(h *OperationHandle, from, to PollState)
	logger       *zap.Logger
}

// NewPoller creates a poller, filling zero config fields with defaults.
func NewPoller(cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollMaxAttempts
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		interval:     cfg.Interval,
		maxAttempts:  cfg.MaxAttempts,
		scheduler:    cfg.Scheduler,
		observer:     cfg.Observer,
		onTransition: cfg.OnTransition,
		logger:       logger.With(zap.String("component", "poller")),
	}
}

// MaxAttempts returns the attempt ceiling.
func (p *Poller) MaxAttempts() int { return p.maxAttempts }

// pollRun is the per-handle machine. It is never shared.
type pollRun struct {
	p      *Poller
	handle *OperationHandle
	state  PollState
}

func (r *pollRun) transition(to PollState) {
	from := r.state
	r.state = to
	r.handle.State = to.handleState()
	r.p.observer.ObservePollTransition(from, to)
	if r.p.onTransition != nil {
		r.p.onTransition(r.handle, from, to)
	}
	if to != PollPolling {
		r.p.logger.Debug("operation state changed",
			zap.String("operation", r.handle.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int("attempts", r.handle.Attempts))
	}
}

func (r *pollRun) finish(to PollState, err error) (string, error) {
	r.transition(to)
	r.p.observer.ObservePollAttempts(to, r.handle.Attempts)
	return "", err
}

// Run polls source until handle reaches a terminal state and returns the
// fetchable result location. Cancelling ctx abandons the operation without
// contacting the provider.
func (p *Poller) Run(ctx context.Context, handle *OperationHandle, source OperationSource) (string, error) {
	if handle == nil || handle.ID == "" {
		return "", types.NewProviderError(types.ProviderMalformed, "", "operation handle has no id")
	}
	r := &pollRun{p: p, handle: handle, state: PollSubmitted}
	r.transition(PollPolling)

	for handle.Attempts < p.maxAttempts {
		select {
		case <-ctx.Done():
			return r.finish(PollTimedOut, types.NewTimeoutError("polling cancelled").WithCause(ctx.Err()))
		case <-p.scheduler.After(p.interval):
		}

		handle.Attempts++
		op, err := source.PollOperation(ctx, handle.ID)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(PollTimedOut, types.NewTimeoutError("polling cancelled").WithCause(ctx.Err()))
			}
			return r.finish(PollFailed, err)
		}
		if op == nil {
			return r.finish(PollFailed, types.NewProviderError(types.ProviderMalformed, "", "empty operation status"))
		}
		if op.Error != nil {
			return r.finish(PollFailed, types.NewProviderError(types.ProviderRejected, "",
				fmt.Sprintf("operation failed: %s", op.Error.Message)))
		}
		if !op.Done {
			if handle.Attempts%progressLogEvery == 0 {
				p.logger.Info("operation still processing",
					zap.String("operation", handle.ID),
					zap.Int("attempts", handle.Attempts),
					zap.Int("max_attempts", p.maxAttempts))
			}
			continue
		}

		if reason, ok := SafetyReason(op.Response); ok {
			return r.finish(PollRejected, types.NewSafetyRejectedError("", reason))
		}
		uri, ok := ExtractLocation(op.Response)
		if !ok {
			raw := op.Raw
			if len(raw) == 0 {
				raw, _ = json.Marshal(op.Response)
			}
			return r.finish(PollFailed, types.NewExtractionError("no result location in completed operation", raw))
		}
		r.transition(PollDone)
		p.observer.ObservePollAttempts(PollDone, handle.Attempts)
		return source.AuthorizeLocation(uri), nil
	}

	return r.finish(PollTimedOut, types.NewTimeoutError(
		fmt.Sprintf("operation %s not done after %d attempts", handle.ID, p.maxAttempts)))
}

// SafetyReason returns the first content-filter reason of a completed
// operation response, if any.
func SafetyReason(resp map[string]any) (string, bool) {
	gvr, _ := resp["generateVideoResponse"].(map[string]any)
	reasons, _ := gvr["raiMediaFilteredReasons"].([]any)
	if len(reasons) == 0 {
		return "", false
	}
	reason, ok := reasons[0].(string)
	if !ok || reason == "" {
		return "", false
	}
	return reason, true
}

// ExtractLocation finds the result location in a completed operation
// response. Known shapes are tried in priority order.
func ExtractLocation(resp map[string]any) (string, bool) {
	for _, extract := range locationShapes {
		if uri := extract(resp); uri != "" {
			return uri, true
		}
	}
	return "", false
}

var locationShapes = []func(map[string]any) string{
	// response.result
	func(resp map[string]any) string {
		switch v := resp["result"].(type) {
		case string:
			return v
		case map[string]any:
			if s := str(v["videoUri"]); s != "" {
				return s
			}
			return str(v["uri"])
		}
		return ""
	},
	// response.generateVideoResponse.generatedSamples[0].video.uri
	func(resp map[string]any) string {
		gvr, _ := resp["generateVideoResponse"].(map[string]any)
		samples, _ := gvr["generatedSamples"].([]any)
		if len(samples) == 0 {
			return ""
		}
		sample, _ := samples[0].(map[string]any)
		video, _ := sample["video"].(map[string]any)
		return str(video["uri"])
	},
	// response.videoUri
	func(resp map[string]any) string {
		return str(resp["videoUri"])
	},
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
