package proxy

import (
	"context"
	"sort"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/browser"
	"github.com/zoreu/cfresolver/internal/config"
)

// Dispatcher executes exactly one fetch strategy per request against a
// live engine and produces the captured markup or a staged failure.
type Dispatcher struct {
	client *resty.Client
	logger *zap.Logger
}

// NewDispatcher builds a dispatcher. The resty client carries the
// out-of-band POST traffic for the hybrid JSON strategy.
func NewDispatcher(cfg config.UpstreamConfig, logger *zap.Logger) *Dispatcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeaders(cfg.Headers)
	return &Dispatcher{
		client: client,
		logger: logger.Named("dispatcher"),
	}
}

// Dispatch runs the strategy the spec's plan selected. Every failure is a
// *FetchError carrying the originating stage.
func (d *Dispatcher) Dispatch(ctx context.Context, eng browser.Engine, spec RequestSpec) (FetchResult, error) {
	target := spec.TargetURL()
	plan := spec.Plan()

	d.logger.Info("Dispatching fetch",
		zap.String("url", target),
		zap.String("strategy", plan.String()),
	)

	switch plan {
	case FormSubmit:
		return d.submitForm(ctx, eng, spec, target)
	case JsonHybrid:
		return d.postThenRender(ctx, eng, spec, target)
	default:
		return d.navigate(ctx, eng, target)
	}
}

// navigate is the plain strategy: drive the browser to the target, wait
// for it to settle and capture the markup.
func (d *Dispatcher) navigate(ctx context.Context, eng browser.Engine, target string) (FetchResult, error) {
	if err := eng.Navigate(ctx, target); err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "failed to load %s: %v", target, err)
	}
	if err := eng.WaitSettled(ctx); err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "page did not settle: %v", err)
	}
	content, err := eng.Content(ctx)
	if err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "failed to read document: %v", err)
	}
	return successResult(content), nil
}

// submitForm navigates, fills each named field inside the form and
// activates the submit control, then captures the post-submission markup.
func (d *Dispatcher) submitForm(ctx context.Context, eng browser.Engine, spec RequestSpec, target string) (FetchResult, error) {
	if err := eng.Navigate(ctx, target); err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "failed to load %s: %v", target, err)
	}
	if err := eng.WaitSettled(ctx); err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "page did not settle: %v", err)
	}

	if err := eng.WaitVisible(ctx, spec.FormSelector); err != nil {
		return FetchResult{}, fetchErrorf(StageFormInteraction, err, "form %q not found: %v", spec.FormSelector, err)
	}

	// Deterministic field order keeps logs and fake-engine assertions
	// stable; the target form does not care.
	names := make([]string, 0, len(spec.FormFields))
	for name := range spec.FormFields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := eng.FillField(ctx, spec.FormSelector, name, spec.FormFields[name]); err != nil {
			return FetchResult{}, fetchErrorf(StageFormInteraction, err, "field %q not interactable: %v", name, err)
		}
	}

	if err := eng.Click(ctx, spec.SubmitSelector); err != nil {
		return FetchResult{}, fetchErrorf(StageFormInteraction, err, "submit control %q not interactable: %v", spec.SubmitSelector, err)
	}

	if err := eng.WaitSettled(ctx); err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "post-submit page did not settle: %v", err)
	}
	content, err := eng.Content(ctx)
	if err != nil {
		return FetchResult{}, fetchErrorf(StageNavigation, err, "failed to read document: %v", err)
	}
	return successResult(content), nil
}

// postThenRender implements the hybrid JSON strategy: the side effect is
// produced by a raw HTTP POST (a pure API endpoint has no form chrome to
// drive), and the rendered result is captured by a separate browser
// navigation afterwards. The two calls are independent requests against
// the target and are not atomically consistent with each other.
func (d *Dispatcher) postThenRender(ctx context.Context, eng browser.Engine, spec RequestSpec, target string) (FetchResult, error) {
	req := d.client.R().
		SetContext(ctx).
		SetHeaders(spec.Headers).
		SetBody(spec.JSONPayload)

	resp, err := req.Post(target)
	if err != nil {
		return FetchResult{}, fetchErrorf(StageUpstreamPost, err, "POST to %s failed: %v", target, err)
	}
	// Anything outside 2xx/3xx aborts before the browser is touched.
	if resp.StatusCode() < 200 || resp.StatusCode() >= 400 {
		return FetchResult{}, fetchErrorf(StageUpstreamPost, nil, "POST to %s returned status %d", target, resp.StatusCode())
	}

	d.logger.Debug("Upstream POST accepted",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode()),
	)
	return d.navigate(ctx, eng, target)
}
