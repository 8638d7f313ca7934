package automation

import (
	"context"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	discoveryName   = "Discovery"
	discoveryTracer = "automation.discovery"
)

// Discovery reads chat, group, label and message listings off the sidebar
// and the open chat.
type Discovery struct {
	bridge  *Bridge
	catalog *selectors.Catalog
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewDiscovery(bridge *Bridge, catalog *selectors.Catalog, opts Options, logger *zap.Logger) *Discovery {
	return &Discovery{
		bridge:  bridge,
		catalog: catalog,
		opts:    opts,
		logger:  logger.With(zap.String(logg.Layer, discoveryName)),
		tracer:  otel.Tracer(discoveryTracer),
	}
}

func (d *Discovery) Groups(ctx context.Context) (groups []entity.Group, err error) {
	const op = "Groups"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	err = d.bridge.Call(ctx, FnListGroups, map[string]any{
		"items":      d.catalog.Set(selectors.RoleChatListItem).Queries,
		"titles":     d.catalog.Set(selectors.RoleChatTitle).Queries,
		"groupIcons": d.catalog.Set(selectors.RoleGroupIcon).Queries,
	}, &groups)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "list_groups_failed",
			apperr.MetaStage:  apperr.StageDiscovery,
		})
	}

	logger.Info("Groups listed", zap.Int("count", len(groups)))

	return groups, nil
}

func (d *Discovery) Labels(ctx context.Context) (result entity.LabelsResult, err error) {
	const op = "Labels"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	err = d.bridge.Call(ctx, FnListLabels, map[string]any{
		"business":   d.catalog.Set(selectors.RoleBusinessMarker).Queries,
		"labels":     d.catalog.Set(selectors.RoleLabelItem).Queries,
		"labelChats": d.catalog.Set(selectors.RoleLabelChat).Queries,
		"titles":     d.catalog.Set(selectors.RoleChatTitle).Queries,
		"settleMs":   d.opts.Settle.Milliseconds(),
	}, &result)
	if err != nil {
		return entity.LabelsResult{}, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "list_labels_failed",
			apperr.MetaStage:  apperr.StageDiscovery,
		})
	}

	if result.Labels == nil {
		result.Labels = []entity.Label{}
	}

	logger.Info("Labels listed",
		zap.Bool("business", result.IsBusinessSupported),
		zap.Int("count", len(result.Labels)))

	return result, nil
}

func (d *Discovery) Contacts(ctx context.Context) (contacts []entity.Contact, err error) {
	const op = "Contacts"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	err = d.bridge.Call(ctx, FnListContacts, map[string]any{
		"items":     d.catalog.Set(selectors.RoleChatListItem).Queries,
		"titles":    d.catalog.Set(selectors.RoleChatTitle).Queries,
		"secondary": d.catalog.Set(selectors.RoleChatSecondary).Queries,
	}, &contacts)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "list_contacts_failed",
			apperr.MetaStage:  apperr.StageDiscovery,
		})
	}

	return contacts, nil
}

// LatestIncoming returns the newest inbound message of the open chat, or
// nil when the chat has none.
func (d *Discovery) LatestIncoming(ctx context.Context) (*entity.IncomingMessage, error) {
	var msg *entity.IncomingMessage

	err := d.bridge.Call(ctx, FnLatestIncoming, map[string]any{
		"incoming": d.catalog.Set(selectors.RoleIncomingMessage).Queries,
		"text":     d.catalog.Set(selectors.RoleMessageText).Queries,
	}, &msg)
	if err != nil {
		return nil, apperr.Wrap("LatestIncoming", apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "latest_incoming_failed",
			apperr.MetaStage:  apperr.StageDiscovery,
		})
	}

	return msg, nil
}
