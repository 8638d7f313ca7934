package automation

import (
	"context"
	"time"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	locatorName   = "ElementLocator"
	locatorTracer = "automation.locator"

	// defaultLocateGrace covers the round trip around the in-page wait.
	defaultLocateGrace = 5 * time.Second
)

// Element is a located page element, addressed by the query that matched it.
type Element struct {
	Role     selectors.Role
	Selector string
}

type Locator struct {
	bridge *Bridge
	grace  time.Duration
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLocator returns a locator whose calls never outlast their timeout by
// more than grace. Zero grace means the default.
func NewLocator(bridge *Bridge, grace time.Duration, logger *zap.Logger) *Locator {
	if grace <= 0 {
		grace = defaultLocateGrace
	}

	return &Locator{
		bridge: bridge,
		grace:  grace,
		logger: logger.With(zap.String(logg.Layer, locatorName)),
		tracer: otel.Tracer(locatorTracer),
	}
}

type locateResult struct {
	Found    bool   `json:"found"`
	Selector string `json:"selector"`
	Error    string `json:"error"`
}

// Locate waits up to timeout for a visible element matching set. A miss is
// reported as found == false, not as an error.
func (l *Locator) Locate(ctx context.Context, set selectors.Set, timeout time.Duration) (Element, bool, error) {
	return l.locate(ctx, set, timeout, true)
}

// LocateAttached is Locate without the visibility requirement, for inputs
// the page keeps hidden.
func (l *Locator) LocateAttached(ctx context.Context, set selectors.Set, timeout time.Duration) (Element, bool, error) {
	return l.locate(ctx, set, timeout, false)
}

func (l *Locator) locate(ctx context.Context, set selectors.Set, timeout time.Duration, visible bool) (el Element, found bool, err error) {
	const op = "Locate"
	logger := l.logger.With(zap.String(logg.Operation, op), zap.String(logg.Role, string(set.Role)))

	ctx, step := tracing.StartSpan(ctx, l.tracer, logger, op,
		attribute.String("role", string(set.Role)),
		attribute.Int64("timeout_ms", timeout.Milliseconds()))
	defer func() {
		step.End(err)
	}()

	if set.Empty() {
		logger.Warn("Selector set is empty")
		return Element{}, false, nil
	}

	var res locateResult

	err = l.bridge.CallWithTimeout(ctx, timeout+l.grace, FnLocate, map[string]any{
		"queries":   set.Queries,
		"timeoutMs": timeout.Milliseconds(),
		"visible":   visible,
	}, &res)
	if err != nil {
		return Element{}, false, err
	}

	if res.Error != "" {
		logger.Debug("Locate observer reported an error", zap.String("error", res.Error))
	}

	if !res.Found {
		step.AddEvent("not found")
		return Element{}, false, nil
	}

	logger.Debug("Element located", zap.String(logg.Selector, res.Selector))

	return Element{Role: set.Role, Selector: res.Selector}, true, nil
}
