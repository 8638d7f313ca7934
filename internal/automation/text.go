package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	textInjectorName   = "TextInjector"
	textInjectorTracer = "automation.text"

	TechniqueExecCommand   = "exec-command"
	TechniqueContentAssign = "content-assign"
	TechniqueKeystrokes    = "keystrokes"
)

var ErrTextNotInserted = errors.New("message text could not be inserted")

type TextInjector struct {
	bridge *Bridge
	pacing time.Duration
	sleep  Sleeper
	logger *zap.Logger
	tracer trace.Tracer
}

func NewTextInjector(bridge *Bridge, pacing time.Duration, logger *zap.Logger, sleep Sleeper) *TextInjector {
	return &TextInjector{
		bridge: bridge,
		pacing: pacing,
		sleep:  sleep,
		logger: logger.With(zap.String(logg.Layer, textInjectorName)),
		tracer: otel.Tracer(textInjectorTracer),
	}
}

// Insert puts text into the compose element and returns the technique that
// left visible content. Techniques are tried in order and each one is
// checked by reading the element back.
func (t *TextInjector) Insert(ctx context.Context, compose Element, text string) (technique string, err error) {
	const op = "InsertText"
	logger := t.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, compose.Selector))

	ctx, step := tracing.StartSpan(ctx, t.tracer, logger, op, attribute.Int("text_len", len(text)))
	defer func() {
		step.End(err)
	}()

	if text == "" {
		return "", nil
	}

	techniques := []struct {
		name string
		fn   func() error
	}{
		{
			name: TechniqueExecCommand,
			fn: func() error {
				var res struct {
					OK bool `json:"ok"`
				}
				if err := t.bridge.Call(ctx, FnExecInsert, map[string]any{"selector": compose.Selector, "text": text}, &res); err != nil {
					return err
				}
				if !res.OK {
					return errors.New("insertText command rejected")
				}

				return nil
			},
		},
		{
			name: TechniqueContentAssign,
			fn: func() error {
				return t.bridge.Call(ctx, FnAssignContent, map[string]any{"selector": compose.Selector, "text": text}, nil)
			},
		},
		{
			name: TechniqueKeystrokes,
			fn: func() error {
				return t.typeText(ctx, compose, text)
			},
		},
	}

	var lastErr error

	for _, technique := range techniques {
		step.AddEvent("trying technique: " + technique.name)

		if err := technique.fn(); err != nil {
			if ctx.Err() != nil {
				return "", apperr.Wrap(op, apperr.CodeCancelled, ctx.Err(), map[string]any{
					apperr.MetaStage: apperr.StageCompose,
				})
			}

			lastErr = err
			logger.Warn("Technique failed", zap.String(logg.Technique, technique.name), zap.Error(err))

			continue
		}

		content, err := t.Content(ctx, compose)
		if err != nil {
			lastErr = err
			logger.Warn("Read back failed", zap.String(logg.Technique, technique.name), zap.Error(err))

			continue
		}

		if content != "" {
			logger.Debug("Text inserted", zap.String(logg.Technique, technique.name))
			return technique.name, nil
		}

		lastErr = fmt.Errorf("%s left the compose box empty", technique.name)
		logger.Warn("Technique left no content", zap.String(logg.Technique, technique.name))
	}

	return "", apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("%w: %v", ErrTextNotInserted, lastErr), map[string]any{
		apperr.MetaReason:   "text_not_inserted",
		apperr.MetaStage:    apperr.StageCompose,
		apperr.MetaSelector: compose.Selector,
	})
}

// Content returns the trimmed text currently shown in el.
func (t *TextInjector) Content(ctx context.Context, el Element) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}

	if err := t.bridge.Call(ctx, FnReadContent, map[string]any{"selector": el.Selector}, &res); err != nil {
		return "", err
	}

	if !res.Found {
		return "", fmt.Errorf("element %s is gone", el.Selector)
	}

	return strings.TrimSpace(res.Text), nil
}

func (t *TextInjector) typeText(ctx context.Context, compose Element, text string) error {
	if err := t.bridge.Call(ctx, FnClearContent, map[string]any{"selector": compose.Selector}, nil); err != nil {
		return err
	}

	if err := t.bridge.Call(ctx, FnFocus, map[string]any{"selector": compose.Selector}, nil); err != nil {
		return err
	}

	page := t.bridge.Page()

	for _, r := range text {
		key := string(r)
		if r == '\n' {
			key = "Shift+Enter"
		}

		if err := page.Press(ctx, key); err != nil {
			return err
		}

		if err := t.sleep(ctx, t.pacing); err != nil {
			return err
		}
	}

	return nil
}
