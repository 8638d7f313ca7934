package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/ports"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	dispatcherName   = "CommandDispatcher"
	dispatcherTracer = "usecase.commands"
	defaultHistory   = 10
)

type Dispatcher struct {
	batches   *Orchestrator
	sessions  *SessionManager
	discovery *DiscoveryService
	settings  *SettingsService
	reports   ports.ReportStore
	logger    *zap.Logger
	tracer    trace.Tracer
}

type DispatcherParams struct {
	fx.In

	Batches   *Orchestrator
	Sessions  *SessionManager
	Discovery *DiscoveryService
	Settings  *SettingsService
	Reports   ports.ReportStore `optional:"true"`
	Logger    *zap.Logger
}

func NewDispatcher(params DispatcherParams) *Dispatcher {
	return &Dispatcher{
		batches:   params.Batches,
		sessions:  params.Sessions,
		discovery: params.Discovery,
		settings:  params.Settings,
		reports:   params.Reports,
		logger:    params.Logger.With(zap.String(logg.Layer, dispatcherName)),
		tracer:    otel.Tracer(dispatcherTracer),
	}
}

// Dispatch resolves cmd exactly once. Errors become a failed Result; a
// panic in a handler is reported the same way.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd entity.Command) (result entity.Result) {
	const op = "Dispatch"
	logger := d.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.CommandID, cmd.ID),
		zap.String(logg.Command, string(cmd.Type)))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op,
		attribute.String("command", string(cmd.Type)))

	var err error

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Command handler panicked", zap.Any("panic", p))
			err = apperr.Wrap(op, apperr.CodeInternal, fmt.Errorf("panic: %v", p), nil)
			result = failure(cmd.ID, err)
		}

		step.End(err)
	}()

	var data any
	data, err = d.handle(ctx, cmd)
	if err != nil {
		logger.Warn("Command failed", zap.String("code", apperr.CodeOf(err)), zap.Error(err))
		return failure(cmd.ID, err)
	}

	logger.Debug("Command resolved")

	return entity.Result{ID: cmd.ID, OK: true, Data: data}
}

func failure(id string, err error) entity.Result {
	return entity.Result{ID: id, OK: false, Error: apperr.MessageOf(err), Code: apperr.CodeOf(err)}
}

func (d *Dispatcher) handle(ctx context.Context, cmd entity.Command) (any, error) {
	const op = "handle"

	switch cmd.Type {
	case entity.CmdSendBulk:
		return d.send(ctx, entity.BatchKindBulk, cmd.Data)
	case entity.CmdSendGroup:
		return d.send(ctx, entity.BatchKindGroup, cmd.Data)
	case entity.CmdSendLabel:
		return d.send(ctx, entity.BatchKindLabel, cmd.Data)
	case entity.CmdGetGroups:
		return d.discovery.Groups(ctx)
	case entity.CmdGetLabels:
		return d.discovery.Labels(ctx)
	case entity.CmdCheckStatus:
		return d.sessions.CheckStatus(ctx), nil
	case entity.CmdExportContacts:
		return d.discovery.Contacts(ctx)

	case entity.CmdToggleAutoReply:
		var payload struct {
			Enabled bool `json:"enabled"`
		}
		if err := decode(op, cmd.Data, &payload); err != nil {
			return nil, err
		}

		return d.settings.ToggleAutoReply(ctx, payload.Enabled)

	case entity.CmdUpdateWelcome, entity.CmdUpdateAutoReply:
		var payload struct {
			Message string `json:"message"`
		}
		if err := decode(op, cmd.Data, &payload); err != nil {
			return nil, err
		}

		if cmd.Type == entity.CmdUpdateWelcome {
			return d.settings.UpdateWelcomeMessage(ctx, payload.Message)
		}

		return d.settings.UpdateAutoReplyTemplate(ctx, payload.Message)

	case entity.CmdHistory:
		var payload struct {
			Limit int `json:"limit"`
		}
		if err := decode(op, cmd.Data, &payload); err != nil {
			return nil, err
		}

		if d.reports == nil {
			return []entity.ReportSummary{}, nil
		}

		if payload.Limit <= 0 {
			payload.Limit = defaultHistory
		}

		return d.reports.RecentReports(ctx, payload.Limit)

	case entity.CmdGetReport:
		var payload struct {
			ID uuid.UUID `json:"id"`
		}
		if err := decode(op, cmd.Data, &payload); err != nil {
			return nil, err
		}

		if payload.ID == uuid.Nil {
			return nil, apperr.InvalidReqError(op, "id", errors.New("report id is required"))
		}

		if d.reports == nil {
			return nil, apperr.NotFoundError(op, errors.New("report history is not available"))
		}

		return d.reports.LoadReport(ctx, payload.ID)
	}

	return nil, apperr.InvalidReqError(op, "type", fmt.Errorf("unknown command %q", cmd.Type))
}

func (d *Dispatcher) send(ctx context.Context, kind entity.BatchKind, raw json.RawMessage) (*entity.BatchResult, error) {
	const op = "send"

	var payload entity.SendPayload
	if err := decode(op, raw, &payload); err != nil {
		return nil, err
	}

	recipients := payload.Recipients

	switch {
	case kind == entity.BatchKindBulk && len(recipients) == 0:
		recipients = entity.ParseNumbers(payload.Numbers)

	case kind == entity.BatchKindLabel && len(recipients) == 0 && len(payload.Labels) > 0:
		labels, err := d.discovery.Labels(ctx)
		if err != nil {
			return nil, err
		}

		if !labels.IsBusinessSupported {
			return nil, apperr.Wrap(op, apperr.CodeInvalidArgument, errors.New("labels need a WhatsApp Business account"), map[string]any{
				apperr.MetaReason: "labels_unsupported",
				apperr.MetaStage:  apperr.StagePreparation,
			})
		}

		recipients = LabelRecipients(labels, payload.Labels...)
	}

	report, err := d.batches.RunBatch(ctx, entity.BatchRequest{
		Kind:         kind,
		Recipients:   recipients,
		Message:      payload.Message,
		DelaySeconds: payload.DelaySeconds,
		Attachment:   payload.Attachment,
	})
	if err != nil {
		return nil, err
	}

	return &entity.BatchResult{
		ID:      report.ID,
		Results: report.Results,
		Counts:  report.Counts,
		Summary: report.Summary(),
	}, nil
}

func decode(op string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.InvalidReqError(op, "data", fmt.Errorf("malformed payload: %w", err))
	}

	return nil
}
