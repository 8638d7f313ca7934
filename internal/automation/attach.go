package automation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"wa-blaster/internal/entity"
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
	attachName   = "AttachmentInjector"
	attachTracer = "automation.attach"
)

var (
	ErrAttachButtonNotFound = errors.New("attachment button not found")
	ErrFileInputNotFound    = errors.New("file input not found")
)

type AttachmentInjector struct {
	bridge  *Bridge
	locator *Locator
	catalog *selectors.Catalog
	opts    Options
	sleep   Sleeper
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewAttachmentInjector(bridge *Bridge, locator *Locator, catalog *selectors.Catalog, opts Options, logger *zap.Logger, sleep Sleeper) *AttachmentInjector {
	return &AttachmentInjector{
		bridge:  bridge,
		locator: locator,
		catalog: catalog,
		opts:    opts,
		sleep:   sleep,
		logger:  logger.With(zap.String(logg.Layer, attachName)),
		tracer:  otel.Tracer(attachTracer),
	}
}

// Attach decodes the payload, opens the attachment menu, installs the file
// into the menu's file input and waits for the upload preview to settle.
// The payload is decoded first so a corrupt attachment never touches the page.
func (a *AttachmentInjector) Attach(ctx context.Context, att *entity.Attachment) (err error) {
	const op = "Attach"
	logger := a.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, a.tracer, logger, op,
		attribute.String("name", att.Name),
		attribute.String("mime_type", att.MimeType))
	defer func() {
		step.End(err)
	}()

	raw, err := att.Decode()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInvalidArgument, fmt.Errorf("attachment decode failed: %w", err), map[string]any{
			apperr.MetaReason: "decode_failed",
			apperr.MetaStage:  apperr.StageAttachment,
		})
	}

	button, found, err := a.locator.Locate(ctx, a.catalog.Set(selectors.RoleAttachButton), a.opts.LocatorTimeout)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("%w: %v", ErrAttachButtonNotFound, err), map[string]any{
			apperr.MetaReason: "attach_button_lookup_failed",
			apperr.MetaStage:  apperr.StageAttachment,
		})
	}

	if !found {
		return apperr.Wrap(op, apperr.CodeNotFound, ErrAttachButtonNotFound, map[string]any{
			apperr.MetaReason: "attach_button_missing",
			apperr.MetaStage:  apperr.StageAttachment,
		})
	}

	if err := a.bridge.Call(ctx, FnClick, map[string]any{"selector": button.Selector}, nil); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("open attachment menu: %w", err), map[string]any{
			apperr.MetaReason:   "attach_button_click_failed",
			apperr.MetaStage:    apperr.StageAttachment,
			apperr.MetaSelector: button.Selector,
		})
	}

	step.AddEvent("attachment menu opened")

	input, found, err := a.locator.LocateAttached(ctx, a.catalog.Set(selectors.RoleFileInput), a.opts.LocatorTimeout)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("%w: %v", ErrFileInputNotFound, err), map[string]any{
			apperr.MetaReason: "file_input_lookup_failed",
			apperr.MetaStage:  apperr.StageAttachment,
		})
	}

	if !found {
		return apperr.Wrap(op, apperr.CodeNotFound, ErrFileInputNotFound, map[string]any{
			apperr.MetaReason: "file_input_missing",
			apperr.MetaStage:  apperr.StageAttachment,
		})
	}

	var res struct {
		Attached bool `json:"attached"`
	}

	err = a.bridge.Call(ctx, FnAttachFile, map[string]any{
		"selector": input.Selector,
		"name":     att.Name,
		"mimeType": att.MimeType,
		"data":     base64.StdEncoding.EncodeToString(raw),
	}, &res)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("attachment injection failed: %w", err), map[string]any{
			apperr.MetaReason:   "attach_file_failed",
			apperr.MetaStage:    apperr.StageAttachment,
			apperr.MetaSelector: input.Selector,
		})
	}

	if !res.Attached {
		return apperr.Wrap(op, apperr.CodeActionFailed, errors.New("attachment injection failed: file list is empty"), map[string]any{
			apperr.MetaReason:   "file_list_empty",
			apperr.MetaStage:    apperr.StageAttachment,
			apperr.MetaSelector: input.Selector,
		})
	}

	logger.Info("Attachment injected", zap.String("name", att.Name), zap.String("size", att.HumanSize()))

	return a.sleep(ctx, a.opts.AttachSettle)
}
