package usecase

import (
	"context"
	"errors"
	"sync"
	"time"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	autoReplyName   = "AutoResponder"
	autoReplyTracer = "usecase.autoreply"
	autoReplyHolder = "auto-reply"
)

// TickResult says what one auto-reply pass did.
type TickResult string

const (
	TickDisabled TickResult = "disabled"
	TickBusy     TickResult = "busy"
	TickIdle     TickResult = "idle"
	TickPrimed   TickResult = "primed"
	TickReplied  TickResult = "replied"
	TickFailed   TickResult = "failed"
)

// AutoResponder answers the newest incoming message of the open chat with
// the stored auto-reply template. The first message seen after start is
// only remembered so old conversations are not answered.
type AutoResponder struct {
	sessions *SessionManager
	gate     *Gate
	settings ports.SettingsStore
	interval time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	primed   bool
	lastSeen string
}

type AutoResponderParams struct {
	Sessions *SessionManager
	Gate     *Gate
	Settings ports.SettingsStore
	Interval time.Duration
	Logger   *zap.Logger
}

func NewAutoResponder(params AutoResponderParams) *AutoResponder {
	interval := params.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &AutoResponder{
		sessions: params.Sessions,
		gate:     params.Gate,
		settings: params.Settings,
		interval: interval,
		logger:   params.Logger.With(zap.String(logg.Layer, autoReplyName)),
		tracer:   otel.Tracer(autoReplyTracer),
	}
}

// Run ticks until ctx is done.
func (a *AutoResponder) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("Auto-reply loop started", zap.Duration("interval", a.interval))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Auto-reply loop stopped")
			return
		case <-ticker.C:
			if _, err := a.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("Auto-reply tick failed", zap.Error(err))
			}
		}
	}
}

func (a *AutoResponder) Tick(ctx context.Context) (result TickResult, err error) {
	const op = "Tick"
	logger := a.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op)
	defer func() {
		step.SetAttributes(attribute.String("result", string(result)))
		step.End(err)
	}()

	settings, err := a.settings.LoadSettings(ctx)
	if err != nil {
		return TickFailed, err
	}

	if !settings.AutoReplyEnabled {
		return TickDisabled, nil
	}

	release, ok := a.gate.TryAcquire(autoReplyHolder)
	if !ok {
		return TickBusy, nil
	}
	defer release()

	session, kit, err := a.sessions.EnsureSession(ctx)
	if err != nil {
		return TickFailed, err
	}

	if !session.IsAuthenticated {
		return TickIdle, nil
	}

	msg, err := kit.Discovery.LatestIncoming(ctx)
	if err != nil {
		return TickFailed, err
	}

	if msg == nil {
		return TickIdle, nil
	}

	a.mu.Lock()
	primed, seen := a.primed, msg.ID == a.lastSeen
	a.primed, a.lastSeen = true, msg.ID
	a.mu.Unlock()

	if !primed {
		return TickPrimed, nil
	}

	if seen {
		return TickIdle, nil
	}

	reply := settings.RenderAutoReply(msg.Text)
	logger.Info("Replying to incoming message", zap.String("message_id", msg.ID))

	compose, found, err := kit.Locator.Locate(ctx, kit.Catalog().Set(selectors.RoleComposeBox), kit.Options().LocatorTimeout)
	if err != nil {
		return TickFailed, err
	}

	if !found {
		return TickFailed, apperr.Wrap(op, apperr.CodeActionFailed, errors.New(msgComposeNotFound), map[string]any{
			apperr.MetaReason: "compose_not_found",
			apperr.MetaStage:  apperr.StageCompose,
		})
	}

	if _, err := kit.Text.Insert(ctx, compose, reply); err != nil {
		return TickFailed, err
	}

	outcome := kit.Trigger.Send(ctx, compose, reply)
	if outcome.Status != entity.OutcomeSuccess {
		return TickFailed, apperr.Wrap(op, apperr.CodeActionFailed, errors.New(outcome.Error), map[string]any{
			apperr.MetaReason: "reply_not_sent",
			apperr.MetaStage:  apperr.StageSend,
		})
	}

	return TickReplied, nil
}
