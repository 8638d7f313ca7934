package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
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
)

const (
	sessionManagerName = "SessionManager"
	sessionTracer      = "usecase.session"
)

// SessionManager keeps the automation bound to one tab hosting the chat
// application and hands out the delivery kit for that tab.
type SessionManager struct {
	browser ports.Browser
	catalog *selectors.Catalog
	opts    automation.Options
	warmup  time.Duration
	sleep   automation.Sleeper
	logger  *zap.Logger
	tracer  trace.Tracer

	mu   sync.Mutex
	kits map[string]*automation.Kit
}

type SessionManagerParams struct {
	Browser ports.Browser
	Catalog *selectors.Catalog
	Options automation.Options
	Warmup  time.Duration
	Sleep   automation.Sleeper
	Logger  *zap.Logger
}

func NewSessionManager(params SessionManagerParams) *SessionManager {
	sleep := params.Sleep
	if sleep == nil {
		sleep = automation.Sleep
	}

	return &SessionManager{
		browser: params.Browser,
		catalog: params.Catalog,
		opts:    params.Options,
		warmup:  params.Warmup,
		sleep:   sleep,
		logger:  params.Logger.With(zap.String(logg.Layer, sessionManagerName)),
		tracer:  otel.Tracer(sessionTracer),
		kits:    make(map[string]*automation.Kit),
	}
}

// EnsureSession reuses the tab already hosting the application or opens
// one and waits for the shell to render, then probes the login state.
// A session that needs a login is returned unauthenticated, not as an error.
func (s *SessionManager) EnsureSession(ctx context.Context) (session entity.Session, kit *automation.Kit, err error) {
	const op = "EnsureSession"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !s.browser.IsReady() {
		return session, nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	page, err := s.findAppTab(ctx)
	if err != nil {
		return session, nil, err
	}

	if page == nil {
		step.AddEvent("opening tab")
		logger.Info("No application tab found, opening one", zap.String(logg.URL, s.opts.AppURL))

		page, err = s.browser.NewPage(ctx, s.opts.AppURL)
		if err != nil {
			return session, nil, apperr.Wrap(op, apperr.CodeSessionUnavailable, err, map[string]any{
				apperr.MetaReason: "open_tab_failed",
				apperr.MetaStage:  apperr.StageSession,
			})
		}

		if err := s.sleep(ctx, s.warmup); err != nil {
			return session, nil, apperr.Wrap(op, apperr.CodeCancelled, err, map[string]any{
				apperr.MetaStage: apperr.StageSession,
			})
		}
	}

	kit = s.kitFor(page)
	session = entity.Session{TabHandle: page.ID(), IsOpen: true}

	probe, err := kit.ProbeAuth(ctx)
	if err != nil {
		return session, kit, apperr.Wrap(op, apperr.CodeSessionUnavailable, err, map[string]any{
			apperr.MetaReason: "auth_probe_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	session.IsAuthenticated = probe.Authenticated()
	step.SetAttributes(attribute.Bool("authenticated", session.IsAuthenticated))

	logger.Debug("Session ready",
		zap.String(logg.TabID, session.TabHandle),
		zap.Bool("authenticated", session.IsAuthenticated))

	return session, kit, nil
}

// CheckStatus reports the state of an existing application tab without
// opening one.
func (s *SessionManager) CheckStatus(ctx context.Context) (status entity.Status) {
	const op = "CheckStatus"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.SetAttributes(
			attribute.Bool("open", status.IsOpen),
			attribute.Bool("authenticated", status.IsAuthenticated))
		step.End(nil)
	}()

	if !s.browser.IsReady() {
		status.Error = "browser is not running"
		return status
	}

	page, err := s.findAppTab(ctx)
	if err != nil {
		status.Error = apperr.MessageOf(err)
		return status
	}

	if page == nil {
		return status
	}

	status.IsOpen = true

	probe, err := s.kitFor(page).ProbeAuth(ctx)
	if err != nil {
		logger.Warn("Auth probe failed", zap.Error(err))
		status.Error = apperr.MessageOf(err)

		return status
	}

	status.IsAuthenticated = probe.Authenticated()

	return status
}

// RequireAuthenticated is EnsureSession for callers that cannot proceed
// without a signed-in chat.
func (s *SessionManager) RequireAuthenticated(ctx context.Context) (*automation.Kit, error) {
	const op = "RequireAuthenticated"

	session, kit, err := s.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}

	if !session.IsAuthenticated {
		return nil, apperr.Wrap(op, apperr.CodeNotAuthenticated, errors.New("scan the QR code to log in first"), map[string]any{
			apperr.MetaReason: "not_authenticated",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	return kit, nil
}

func (s *SessionManager) findAppTab(ctx context.Context) (ports.Page, error) {
	const op = "findAppTab"

	pages, err := s.browser.Pages(ctx)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeSessionUnavailable, err, map[string]any{
			apperr.MetaReason: "list_tabs_failed",
			apperr.MetaStage:  apperr.StageSession,
		})
	}

	host := appHost(s.opts.AppURL)

	for _, p := range pages {
		if !p.IsClosed() && strings.Contains(p.URL(), host) {
			return p, nil
		}
	}

	return nil, nil
}

// kitFor returns the cached kit of page, dropping kits of closed tabs.
func (s *SessionManager) kitFor(page ports.Page) *automation.Kit {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, kit := range s.kits {
		if kit.Bridge.Page().IsClosed() {
			delete(s.kits, id)
		}
	}

	if kit, ok := s.kits[page.ID()]; ok && kit.Bridge.Page() == page {
		return kit
	}

	kit := automation.NewKit(page, s.catalog, s.opts, s.logger, s.sleep)
	s.kits[page.ID()] = kit

	return kit
}

func appHost(appURL string) string {
	u, err := url.Parse(appURL)
	if err != nil || u.Host == "" {
		return appURL
	}

	return u.Host
}
