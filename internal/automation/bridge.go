package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"wa-blaster/internal/ports"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	bridgeName   = "PageBridge"
	bridgeTracer = "automation.bridge"

	DefaultCommandTimeout = 30 * time.Second
)

// Request is the typed envelope sent into the page. The page answers with
// a response carrying the same ID.
type Request struct {
	ID   string `json:"id"`
	Fn   string `json:"fn"`
	Args any    `json:"args"`
}

type response struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// Bridge runs named page functions on one tab. Every call is bounded by a
// timeout; a call that outlives it is reported as failed and the page side
// is abandoned.
type Bridge struct {
	page    ports.Page
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewBridge(page ports.Page, timeout time.Duration, logger *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	return &Bridge{
		page:    page,
		timeout: timeout,
		logger:  logger.With(zap.String(logg.Layer, bridgeName)),
		tracer:  otel.Tracer(bridgeTracer),
	}
}

func (b *Bridge) Page() ports.Page {
	return b.page
}

func (b *Bridge) Timeout() time.Duration {
	return b.timeout
}

// Call runs fn with args and decodes the returned data into out (which may be nil).
func (b *Bridge) Call(ctx context.Context, fn string, args any, out any) error {
	return b.CallWithTimeout(ctx, b.timeout, fn, args, out)
}

func (b *Bridge) CallWithTimeout(ctx context.Context, timeout time.Duration, fn string, args any, out any) (err error) {
	const op = "Bridge.Call"
	logger := b.logger.With(zap.String(logg.Operation, op), zap.String(logg.Fn, fn))

	ctx, step := tracing.StartSpan(ctx, b.tracer, logger, op, attribute.String("fn", fn))
	defer func() {
		step.End(err)
	}()

	body, ok := scripts[fn]
	if !ok {
		return apperr.Wrap(op, apperr.CodeInvalidArgument, fmt.Errorf("unknown page function %q", fn), map[string]any{
			apperr.MetaReason: "unknown_fn",
			apperr.MetaFn:     fn,
		})
	}

	if b.page.IsClosed() {
		return apperr.Wrap(op, apperr.CodeSessionUnavailable, errors.New("tab is closed"), map[string]any{
			apperr.MetaReason: "tab_closed",
			apperr.MetaStage:  apperr.StageSession,
			apperr.MetaFn:     fn,
		})
	}

	req := Request{
		ID:   uuid.NewString(),
		Fn:   fn,
		Args: args,
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		raw json.RawMessage
		err error
	}

	done := make(chan result, 1)

	go func() {
		raw, err := b.page.Evaluate(callCtx, expression(body), req)
		done <- result{raw: raw, err: err}
	}()

	var res result

	select {
	case <-callCtx.Done():
		return interrupted(ctx, op, fn, timeout)
	case res = <-done:
	}

	if res.err != nil {
		// a page that gave up because the call context ended
		if callCtx.Err() != nil {
			return interrupted(ctx, op, fn, timeout)
		}

		return apperr.Wrap(op, apperr.CodeActionFailed, res.err, map[string]any{
			apperr.MetaReason: "evaluate_failed",
			apperr.MetaFn:     fn,
		})
	}

	var resp response
	if err := json.Unmarshal(res.raw, &resp); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "malformed_response",
			apperr.MetaFn:     fn,
		})
	}

	if resp.ID != req.ID {
		return apperr.Wrap(op, apperr.CodeInternal, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID), map[string]any{
			apperr.MetaReason: "correlation_mismatch",
			apperr.MetaFn:     fn,
		})
	}

	if !resp.OK {
		return apperr.Wrap(op, apperr.CodeActionFailed, errors.New(resp.Error), map[string]any{
			apperr.MetaReason: "page_error",
			apperr.MetaFn:     fn,
		})
	}

	if out == nil || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(resp.Data, out); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "decode_data_failed",
			apperr.MetaFn:     fn,
		})
	}

	return nil
}

// interrupted reports a call whose context ended before the page answered.
func interrupted(ctx context.Context, op, fn string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return apperr.Wrap(op, apperr.CodeCancelled, ctx.Err(), map[string]any{
			apperr.MetaReason: "cancelled",
			apperr.MetaFn:     fn,
		})
	}

	return apperr.Wrap(op, apperr.CodeTimeout, fmt.Errorf("page call %s timed out after %s", fn, timeout), map[string]any{
		apperr.MetaReason: "command_timeout",
		apperr.MetaFn:     fn,
	})
}
