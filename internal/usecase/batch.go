package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"wa-blaster/internal/automation"
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
	"golang.org/x/time/rate"
)

const (
	orchestratorName   = "BatchOrchestrator"
	orchestratorTracer = "usecase.batch"
	batchHolder        = "batch"

	msgComposeNotFound = "Message input not found"
	msgUnreachable     = "Number is not registered on WhatsApp"
	msgCancelled       = "cancelled"
	msgSessionLost     = "chat tab was closed"
)

// Orchestrator runs one batch at a time over the shared chat tab.
type Orchestrator struct {
	sessions         *SessionManager
	gate             *Gate
	settings         ports.SettingsStore
	reports          ports.ReportStore
	limiter          *rate.Limiter
	delayBuffer      time.Duration
	recipientTimeout time.Duration
	sleep            automation.Sleeper
	logger           *zap.Logger
	tracer           trace.Tracer
}

type OrchestratorParams struct {
	Sessions         *SessionManager
	Gate             *Gate
	Settings         ports.SettingsStore
	Reports          ports.ReportStore
	DelayBuffer      time.Duration
	RecipientTimeout time.Duration
	// MaxPerMinute caps sends across batches. Zero disables the ceiling.
	MaxPerMinute float64
	Sleep        automation.Sleeper
	Logger       *zap.Logger
}

func NewOrchestrator(params OrchestratorParams) *Orchestrator {
	sleep := params.Sleep
	if sleep == nil {
		sleep = automation.Sleep
	}

	return &Orchestrator{
		sessions:         params.Sessions,
		gate:             params.Gate,
		settings:         params.Settings,
		reports:          params.Reports,
		limiter:          newLimiter(params.MaxPerMinute),
		delayBuffer:      params.DelayBuffer,
		recipientTimeout: params.RecipientTimeout,
		sleep:            sleep,
		logger:           params.Logger.With(zap.String(logg.Layer, orchestratorName)),
		tracer:           otel.Tracer(orchestratorTracer),
	}
}

func newLimiter(perMinute float64) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	burst := int(math.Max(1, math.Floor(perMinute/60)))

	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

// RunBatch delivers the message to every recipient in order and returns one
// outcome per recipient. Only validation, busy and session errors are
// returned; per-recipient failures are recorded in the report.
func (o *Orchestrator) RunBatch(ctx context.Context, req entity.BatchRequest) (report *entity.Report, err error) {
	const op = "RunBatch"
	logger := o.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op,
		attribute.String("kind", string(req.Kind)),
		attribute.Int("recipients", len(req.Recipients)))
	defer func() {
		step.End(err)
	}()

	if err := o.validate(req); err != nil {
		return nil, err
	}

	release, err := o.gate.Acquire(op, batchHolder)
	if err != nil {
		return nil, err
	}
	defer release()

	kit, err := o.sessions.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	settings := o.loadSettings(ctx)

	report = entity.NewReport(req.Kind, len(req.Recipients))
	logger = logger.With(zap.String(logg.BatchID, report.ID.String()))
	step.SetAttributes(attribute.String("batch_id", report.ID.String()))

	logger.Info("Batch started",
		zap.Int("recipients", len(req.Recipients)),
		zap.Duration("delay", req.Delay()),
		zap.Bool("attachment", req.Attachment != nil))

	for i, recipient := range req.Recipients {
		if i > 0 {
			if err := o.sleep(ctx, req.Delay()+o.delayBuffer); err != nil {
				o.cancelRemaining(report, req.Recipients[i:])
				break
			}
		}

		if ctx.Err() != nil {
			o.cancelRemaining(report, req.Recipients[i:])
			break
		}

		if err := o.limiter.Wait(ctx); err != nil {
			o.cancelRemaining(report, req.Recipients[i:])
			break
		}

		if kit.Bridge.Page().IsClosed() {
			logger.Warn("Chat tab closed mid-batch, re-establishing session")

			if kit, err = o.sessions.RequireAuthenticated(ctx); err != nil {
				o.failRemaining(report, req.Recipients[i:], msgSessionLost)
				break
			}
		}

		// a started attempt runs to completion; cancellation is honoured at
		// the checkpoints above
		message := o.messageFor(req, recipient, settings)
		outcome := o.deliver(context.WithoutCancel(ctx), kit, entity.SendRequest{
			Recipient:   recipient,
			MessageText: message,
			Attachment:  req.Attachment,
		})

		report.Add(outcome)

		logger.Info("Recipient processed",
			zap.Int("index", i),
			zap.String(logg.Recipient, recipient.String()),
			zap.String("status", string(outcome.Status)),
			zap.String(logg.Strategy, outcome.StrategyUsed),
			zap.String("error", outcome.Error))
	}

	report.Finish()

	step.SetAttributes(
		attribute.Int("success", report.Counts.Success),
		attribute.Int("failed", report.Counts.Failed),
		attribute.Int("invalid", report.Counts.Invalid))

	logger.Info("Batch finished",
		zap.Int("success", report.Counts.Success),
		zap.Int("failed", report.Counts.Failed),
		zap.Int("invalid", report.Counts.Invalid))

	if o.reports != nil {
		// history is best effort
		if err := o.reports.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("Failed to store batch report", zap.Error(err))
		}
	}

	return report, nil
}

func (o *Orchestrator) validate(req entity.BatchRequest) error {
	const op = "validate"

	if len(req.Recipients) == 0 {
		return apperr.InvalidReqError(op, "recipients", errors.New("no recipients given"))
	}

	if req.DelaySeconds < 0 {
		return apperr.InvalidReqError(op, "delaySeconds", errors.New("delay cannot be negative"))
	}

	if req.Attachment != nil {
		if err := req.Attachment.Validate(); err != nil {
			return apperr.InvalidReqError(op, "attachment", err)
		}
	}

	welcome := req.Kind == entity.BatchKindGroup
	if strings.TrimSpace(req.Message) == "" && req.Attachment == nil && !welcome {
		return apperr.InvalidReqError(op, "message", errors.New("message text or attachment is required"))
	}

	for _, r := range req.Recipients {
		if r.Kind == entity.RecipientKindNumber && !entity.PlausibleNumber(r.Value) {
			o.logger.Warn("Number looks too short, sending anyway",
				zap.String(logg.Recipient, r.Value),
				zap.Int("min_digits", entity.MinPhoneDigits))
		}
	}

	return nil
}

// messageFor falls back to the stored welcome message for group batches
// sent without text.
func (o *Orchestrator) messageFor(req entity.BatchRequest, r entity.Recipient, settings entity.Settings) string {
	if strings.TrimSpace(req.Message) != "" || req.Attachment != nil || req.Kind != entity.BatchKindGroup {
		return req.Message
	}

	return settings.RenderWelcome(r.Name)
}

func (o *Orchestrator) loadSettings(ctx context.Context) entity.Settings {
	if o.settings == nil {
		return entity.DefaultSettings()
	}

	settings, err := o.settings.LoadSettings(ctx)
	if err != nil {
		o.logger.Warn("Failed to load settings, using defaults", zap.Error(err))
		return entity.DefaultSettings()
	}

	return settings
}

func (o *Orchestrator) cancelRemaining(report *entity.Report, rest []entity.Recipient) {
	o.failRemaining(report, rest, msgCancelled)
}

func (o *Orchestrator) failRemaining(report *entity.Report, rest []entity.Recipient, reason string) {
	for _, r := range rest {
		report.Add(entity.Failed(r, reason))
	}
}

// deliver runs the per-recipient pipeline. Panics and errors end up in the
// outcome; nothing escapes to the batch loop.
func (o *Orchestrator) deliver(ctx context.Context, kit *automation.Kit, req entity.SendRequest) (outcome entity.SendOutcome) {
	const op = "deliver"
	r := req.Recipient
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.Recipient, r.String()))
	started := time.Now()

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op,
		attribute.String("recipient", r.Key()))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Recipient pipeline panicked", zap.Any("panic", p))
			outcome = entity.Failed(r, fmt.Sprintf("internal error: %v", p))
		}

		outcome.Recipient = r
		outcome.Duration = time.Since(started)

		step.SetAttributes(attribute.String("status", string(outcome.Status)))
		step.End(nil)
	}()

	if o.recipientTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.recipientTimeout)
		defer cancel()
	}

	if err := req.Validate(); err != nil {
		return entity.Failed(r, err.Error())
	}

	if outcome, done := o.openChat(ctx, kit, r); done {
		return outcome
	}

	compose, found, err := kit.Locator.Locate(ctx, kit.Catalog().Set(selectors.RoleComposeBox), kit.Options().LocatorTimeout)
	if err != nil {
		return entity.Failed(r, apperr.MessageOf(err))
	}

	if !found {
		if r.Kind == entity.RecipientKindNumber {
			if marker, unreachable, _ := kit.Chat.Unreachable(ctx); unreachable {
				logger.Info("Number unreachable", zap.String("marker", marker))
				return entity.Invalid(r, msgUnreachable)
			}
		}

		return entity.Failed(r, msgComposeNotFound)
	}

	target := compose

	if req.Attachment != nil {
		step.AddEvent("attaching")

		if err := kit.Attach.Attach(ctx, req.Attachment); err != nil {
			return entity.Failed(r, "Failed to attach file: "+apperr.MessageOf(err))
		}

		caption, found, err := kit.Locator.Locate(ctx, kit.Catalog().Set(selectors.RoleCaptionBox), kit.Options().LocatorTimeout)
		if err == nil && found {
			target = caption
		}
	}

	if strings.TrimSpace(req.MessageText) != "" {
		technique, err := kit.Text.Insert(ctx, target, req.MessageText)
		if err != nil {
			return entity.Failed(r, apperr.MessageOf(err))
		}

		logger.Debug("Text inserted", zap.String(logg.Technique, technique))
	}

	outcome = kit.Trigger.Send(ctx, target, req.MessageText)
	if outcome.Status == entity.OutcomeFailed && ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		outcome.Error = "timed out after " + o.recipientTimeout.String()
	}

	return outcome
}

// openChat brings the recipient's chat into view. done is true when the
// recipient already has its outcome.
func (o *Orchestrator) openChat(ctx context.Context, kit *automation.Kit, r entity.Recipient) (entity.SendOutcome, bool) {
	switch r.Kind {
	case entity.RecipientKindNumber:
		if err := kit.Chat.OpenNumber(ctx, r.Value); err != nil {
			return entity.Failed(r, apperr.MessageOf(err)), true
		}

		marker, unreachable, err := kit.Chat.Unreachable(ctx)
		if err != nil {
			o.logger.Debug("Unreachable check failed", zap.String(logg.Recipient, r.Value), zap.Error(err))
		}

		if unreachable {
			o.logger.Info("Number unreachable", zap.String(logg.Recipient, r.Value), zap.String("marker", marker))
			return entity.Invalid(r, msgUnreachable), true
		}

	case entity.RecipientKindGroup, entity.RecipientKindLabeledChat:
		if err := kit.Chat.SelectChat(ctx, r); err != nil {
			return entity.Failed(r, apperr.MessageOf(err)), true
		}

	default:
		return entity.Failed(r, fmt.Sprintf("unknown recipient kind %q", r.Kind)), true
	}

	return entity.SendOutcome{}, false
}
