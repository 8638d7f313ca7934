package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"
	"wa-blaster/internal/config"
	"wa-blaster/internal/ports"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	cdpManagerName = "CDPManager"
	cdpTracer      = "browser.cdp"
)

// CDPManager drives Chrome over the DevTools protocol. With a CDP URL it
// attaches to a Chrome the operator already runs, which lets the session
// reuse a logged-in tab; otherwise it starts Chrome with a persistent profile.
type CDPManager struct {
	config *config.Config
	logger *zap.Logger
	tracer trace.Tracer

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pages         map[target.ID]*cdpPage
	ready         bool
}

var _ ports.Browser = (*CDPManager)(nil)

func NewCDPManager(params Params) *CDPManager {
	return &CDPManager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, cdpManagerName)),
		tracer: otel.Tracer(cdpTracer),
		pages:  make(map[target.ID]*cdpPage),
	}
}

func (m *CDPManager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	cfg := m.config.BrowserConfig

	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if cfg.CDPURL != "" {
		logger.Info("Attaching to running Chrome", zap.String(logg.URL, cfg.CDPURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.CDPURL)
	} else {
		if err := os.MkdirAll(cfg.UserDataDir, 0o755); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "mkdir_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.UserDataDir(cfg.UserDataDir),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-infobars", true),
			chromedp.Flag("disable-prompt-on-repost", true),
			chromedp.WindowSize(1280, 900),
		)

		if cfg.ChromePath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
		}

		logger.Info("Starting Chrome", zap.String("user_data_dir", cfg.UserDataDir))
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	step.AddEvent("connecting")

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()

		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "chrome_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.mu.Lock()
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.ready = true
	m.mu.Unlock()

	logger.Info("Chrome ready")

	return nil
}

func (m *CDPManager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.pages {
		p.cancel()
		delete(m.pages, id)
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}

	m.ready = false
	logger.Info("Chrome connection closed")

	return nil
}

func (m *CDPManager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Pages lists the open page targets, attaching to each one the first time
// it is seen.
func (m *CDPManager) Pages(ctx context.Context) (_ []ports.Page, err error) {
	const op = "Pages"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	targets, err := chromedp.Targets(m.browserCtx)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "list_targets_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ports.Page, 0, len(targets))
	seen := make(map[target.ID]bool, len(targets))

	for _, t := range targets {
		if t.Type != "page" {
			continue
		}

		seen[t.TargetID] = true

		p, ok := m.pages[t.TargetID]
		if !ok {
			tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(t.TargetID))
			p = &cdpPage{id: t.TargetID, ctx: tabCtx, cancel: cancel}
			m.pages[t.TargetID] = p
		}

		p.setURL(t.URL)
		out = append(out, p)
	}

	for id, p := range m.pages {
		if !seen[id] {
			p.cancel()
			delete(m.pages, id)
		}
	}

	return out, nil
}

func (m *CDPManager) NewPage(ctx context.Context, url string) (_ ports.Page, err error) {
	const op = "NewPage"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	p := &cdpPage{ctx: tabCtx, cancel: cancel}

	if err := p.Navigate(ctx, url); err != nil {
		cancel()
		return nil, err
	}

	if t := chromedp.FromContext(tabCtx).Target; t != nil {
		p.id = t.TargetID
	}

	m.mu.Lock()
	m.pages[p.id] = p
	m.mu.Unlock()

	logger.Info("Opened new tab", zap.String(logg.TabID, string(p.id)))

	return p, nil
}

// cdpPage adapts one chromedp tab context to ports.Page.
type cdpPage struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	url string
}

func (p *cdpPage) ID() string { return string(p.id) }

func (p *cdpPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *cdpPage) setURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *cdpPage) IsClosed() bool {
	return p.ctx.Err() != nil
}

// run executes actions on the tab, bounded by the caller's ctx. Cancelling
// a derived context stops the actions without closing the tab.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	const op = "Navigate"

	var location string

	err := p.run(ctx, chromedp.Navigate(url), chromedp.Location(&location))
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "navigate_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	p.setURL(location)

	return nil
}

func (p *cdpPage) Evaluate(ctx context.Context, expr string, arg any) (json.RawMessage, error) {
	encoded, err := json.Marshal(arg)
	if err != nil {
		return nil, fmt.Errorf("encode evaluate argument: %w", err)
	}

	var raw []byte

	err = p.run(ctx, chromedp.Evaluate("("+expr+")("+string(encoded)+")", &raw,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true)
		}))
	if err != nil {
		return nil, err
	}

	return raw, nil
}

func (p *cdpPage) Press(ctx context.Context, key string) error {
	switch {
	case key == "Enter":
		return p.run(ctx, chromedp.KeyEvent(kb.Enter))
	case key == "Shift+Enter":
		return p.run(ctx, chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierShift)))
	case utf8.RuneCountInString(key) == 1:
		return p.run(ctx, chromedp.KeyEvent(key))
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
}
