package automation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
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
	navigatorName   = "ChatNavigator"
	navigatorTracer = "automation.chat"

	pageTextLimit = 50000
)

var ErrChatNotFound = errors.New("chat not found")

// Navigator brings the target chat into the open pane.
type Navigator struct {
	bridge  *Bridge
	locator *Locator
	catalog *selectors.Catalog
	opts    Options
	sleep   Sleeper
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewNavigator(bridge *Bridge, locator *Locator, catalog *selectors.Catalog, opts Options, logger *zap.Logger, sleep Sleeper) *Navigator {
	return &Navigator{
		bridge:  bridge,
		locator: locator,
		catalog: catalog,
		opts:    opts,
		sleep:   sleep,
		logger:  logger.With(zap.String(logg.Layer, navigatorName)),
		tracer:  otel.Tracer(navigatorTracer),
	}
}

// SendURL is the direct-chat link for a phone number.
func SendURL(appURL, phone string) string {
	return strings.TrimRight(appURL, "/") + "/send?phone=" + url.QueryEscape(entity.Digits(phone))
}

// OpenNumber navigates the tab to the direct chat of phone and confirms the
// interstitial when the page shows one.
func (n *Navigator) OpenNumber(ctx context.Context, phone string) (err error) {
	const op = "OpenNumber"
	target := SendURL(n.opts.AppURL, phone)
	logger := n.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, target))

	ctx, step := tracing.StartSpan(ctx, n.tracer, logger, op, attribute.String("url", target))
	defer func() {
		step.End(err)
	}()

	if err := n.bridge.Call(ctx, FnDisableUnload, nil, nil); err != nil {
		logger.Debug("Could not disable unload prompt", zap.Error(err))
	}

	if err := n.bridge.Page().Navigate(ctx, target); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "navigate_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    target,
		})
	}

	if err := n.sleep(ctx, n.opts.NavigationSettle); err != nil {
		return err
	}

	button, found, err := n.locator.Locate(ctx, n.catalog.Set(selectors.RoleContinueToChat), 0)
	if err != nil || !found {
		return nil
	}

	step.AddEvent("continue to chat")

	if err := n.bridge.Call(ctx, FnClick, map[string]any{"selector": button.Selector}, nil); err != nil {
		logger.Warn("Continue to chat click failed", zap.Error(err))
		return nil
	}

	return n.sleep(ctx, n.opts.NavigationSettle)
}

// Unreachable reports the marker text when the page says the number cannot
// receive messages.
func (n *Navigator) Unreachable(ctx context.Context) (string, bool, error) {
	var res struct {
		Text string `json:"text"`
	}

	if err := n.bridge.Call(ctx, FnPageText, map[string]any{"limit": pageTextLimit}, &res); err != nil {
		return "", false, err
	}

	marker, ok := n.catalog.MatchUnreachable(res.Text)

	return marker, ok, nil
}

type selectResult struct {
	Selected bool   `json:"selected"`
	By       string `json:"by"`
}

// SelectChat opens a group or labeled chat from the sidebar. The id is
// tried first, then the display name, then a sidebar search by name.
func (n *Navigator) SelectChat(ctx context.Context, r entity.Recipient) (err error) {
	const op = "SelectChat"
	logger := n.logger.With(zap.String(logg.Operation, op), zap.String(logg.Recipient, r.String()))

	ctx, step := tracing.StartSpan(ctx, n.tracer, logger, op,
		attribute.String("kind", string(r.Kind)),
		attribute.String("id", r.ID))
	defer func() {
		step.End(err)
	}()

	res, err := n.selectOnce(ctx, r)
	if err != nil {
		return err
	}

	if !res.Selected && r.Name != "" {
		step.AddEvent("searching sidebar")

		var typed struct {
			Typed bool `json:"typed"`
		}

		err = n.bridge.Call(ctx, FnSearchChat, map[string]any{
			"search": n.catalog.Set(selectors.RoleSearchBox).Queries,
			"name":   r.Name,
		}, &typed)
		if err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason: "search_failed",
				apperr.MetaStage:  apperr.StageNavigation,
			})
		}

		if typed.Typed {
			if err := n.sleep(ctx, n.opts.Settle); err != nil {
				return err
			}

			if res, err = n.selectOnce(ctx, r); err != nil {
				return err
			}
		}
	}

	if !res.Selected {
		return apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("%w: %s", ErrChatNotFound, r), map[string]any{
			apperr.MetaReason:    "chat_not_found",
			apperr.MetaStage:     apperr.StageNavigation,
			apperr.MetaRecipient: r.Key(),
		})
	}

	logger.Debug("Chat selected", zap.String("by", res.By))

	return n.sleep(ctx, n.opts.NavigationSettle)
}

func (n *Navigator) selectOnce(ctx context.Context, r entity.Recipient) (selectResult, error) {
	var res selectResult

	err := n.bridge.Call(ctx, FnSelectChat, map[string]any{
		"items":  n.catalog.Set(selectors.RoleChatListItem).Queries,
		"titles": n.catalog.Set(selectors.RoleChatTitle).Queries,
		"id":     r.ID,
		"name":   r.Name,
	}, &res)
	if err != nil {
		return res, apperr.Wrap("SelectChat", apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "select_failed",
			apperr.MetaStage:  apperr.StageNavigation,
		})
	}

	return res, nil
}
