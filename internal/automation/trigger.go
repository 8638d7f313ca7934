package automation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	triggerName   = "SendTrigger"
	triggerTracer = "automation.trigger"

	StrategyButtonClick     = "button-click"
	StrategyEnterKey        = "enter-key"
	StrategyScriptInjection = "script-injection"

	// ErrNotConfirmed is the outcome error when no strategy was verified.
	ErrNotConfirmed = "message not confirmed sent"

	sendButtonTimeout = 5 * time.Second
)

// Strategies lists the submit strategies in the order they are tried.
var Strategies = []string{StrategyButtonClick, StrategyEnterKey, StrategyScriptInjection}

type Trigger struct {
	bridge   *Bridge
	locator  *Locator
	text     *TextInjector
	verifier *Verifier
	catalog  *selectors.Catalog
	opts     Options
	sleep    Sleeper
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewTrigger(bridge *Bridge, locator *Locator, text *TextInjector, verifier *Verifier, catalog *selectors.Catalog, opts Options, logger *zap.Logger, sleep Sleeper) *Trigger {
	return &Trigger{
		bridge:   bridge,
		locator:  locator,
		text:     text,
		verifier: verifier,
		catalog:  catalog,
		opts:     opts,
		sleep:    sleep,
		logger:   logger.With(zap.String(logg.Layer, triggerName)),
		tracer:   otel.Tracer(triggerTracer),
	}
}

// Send submits what is in compose and returns a partial outcome: status,
// error, strategy and attempted methods. The caller fills the recipient.
// Strategies run strictly in order and stop at the first verified send.
func (t *Trigger) Send(ctx context.Context, compose Element, text string) (outcome entity.SendOutcome) {
	const op = "Send"
	logger := t.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, t.tracer, logger, op)
	defer func() {
		step.SetAttributes(attribute.String("status", string(outcome.Status)))
		step.End(nil)
	}()

	baseline := t.verifier.Snapshot(ctx)

	strategies := []struct {
		name string
		fn   func() error
	}{
		{
			name: StrategyButtonClick,
			fn: func() error {
				button, found, err := t.locator.Locate(ctx, t.catalog.Set(selectors.RoleSendButton), min(sendButtonTimeout, t.opts.LocatorTimeout))
				if err != nil {
					return err
				}
				if !found {
					return errors.New("send button not found")
				}

				return t.bridge.Call(ctx, FnClick, map[string]any{"selector": button.Selector}, nil)
			},
		},
		{
			name: StrategyEnterKey,
			fn: func() error {
				if err := t.bridge.Call(ctx, FnFocus, map[string]any{"selector": compose.Selector}, nil); err != nil {
					return err
				}

				return t.bridge.Page().Press(ctx, "Enter")
			},
		},
		{
			name: StrategyScriptInjection,
			fn: func() error {
				var res struct {
					Dispatched bool   `json:"dispatched"`
					Via        string `json:"via"`
				}

				err := t.bridge.Call(ctx, FnInjectSend, map[string]any{
					"composeSelector": compose.Selector,
					"sendQueries":     t.catalog.Set(selectors.RoleSendButton).Queries,
				}, &res)
				if err != nil {
					return err
				}
				if !res.Dispatched {
					return errors.New("injected script found nothing to submit")
				}

				logger.Debug("Injected submit dispatched", zap.String("via", res.Via))

				return nil
			},
		},
	}

	attempted := make([]string, 0, len(strategies))
	var lastErr error

	for i, strategy := range strategies {
		if ctx.Err() != nil {
			break
		}

		if i > 0 {
			t.ensureText(ctx, compose, text, baseline)
		}

		attempted = append(attempted, strategy.name)
		step.AddEvent("trying strategy: " + strategy.name)

		if err := strategy.fn(); err != nil {
			lastErr = err
			logger.Warn("Strategy failed", zap.String(logg.Strategy, strategy.name), zap.Error(err))

			continue
		}

		if err := t.sleep(ctx, t.opts.Settle); err != nil {
			lastErr = err
			break
		}

		if t.verifier.VerifySince(ctx, text, baseline) {
			logger.Info("Message sent", zap.String(logg.Strategy, strategy.name))

			return entity.SendOutcome{
				Status:           entity.OutcomeSuccess,
				StrategyUsed:     strategy.name,
				AttemptedMethods: attempted,
			}
		}

		lastErr = fmt.Errorf("%s not verified", strategy.name)
		logger.Warn("Strategy not verified", zap.String(logg.Strategy, strategy.name))
	}

	message := ErrNotConfirmed
	if ctx.Err() != nil {
		message = "cancelled"
	}

	if lastErr != nil {
		logger.Warn("All send strategies exhausted", zap.Strings("attempted", attempted), zap.Error(lastErr))
	}

	return entity.SendOutcome{
		Status:           entity.OutcomeFailed,
		Error:            message,
		AttemptedMethods: attempted,
	}
}

// ensureText re-inserts text only when the compose box is empty and no new
// bubble appeared since baseline, so a later strategy never duplicates a
// message that an earlier one already inserted or sent.
func (t *Trigger) ensureText(ctx context.Context, compose Element, text string, baseline Baseline) {
	if text == "" {
		return
	}

	content, err := t.text.Content(ctx, compose)
	if err != nil || content != "" {
		return
	}

	entries, err := t.verifier.Transcript(ctx)
	if err == nil && len(After(entries, baseline)) > 0 {
		return
	}

	if _, err := t.text.Insert(ctx, compose, text); err != nil {
		t.logger.Warn("Re-inserting text failed", zap.Error(err))
	}
}
