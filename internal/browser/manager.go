package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"
	"wa-blaster/internal/config"
	"wa-blaster/internal/ports"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	userAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var launchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--window-size=1920,1080",
}

// Manager drives Chromium through playwright. A persistent profile keeps
// the chat login across runs.
type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext

	mu    sync.Mutex
	pages map[playwright.Page]*page
	ready bool
}

var _ ports.Browser = (*Manager)(nil)

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
		pages:  make(map[playwright.Page]*page),
	}
}

func (m *Manager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser...")
	step.AddEvent("installing playwright")

	err = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	if m.config.BrowserConfig.UserDataDir != "" {
		return m.launchPersistent(ctx)
	}

	return m.launchNew(ctx)
}

func (m *Manager) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	userDataDir := m.config.BrowserConfig.UserDataDir
	logger.Info("Launching persistent browser context", zap.String("user_data_dir", userDataDir))

	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	options := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:            playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		UserAgent:         playwright.String(userAgent),
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
		Args:              launchArgs,
	}

	if path := m.config.BrowserConfig.ChromePath; path != "" {
		options.ExecutablePath = playwright.String(path)
	}

	browserContext, err := m.playwright.Chromium.LaunchPersistentContext(userDataDir, options)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext
	m.setReady(true)
	logger.Info("Browser launched successfully", zap.Int("open_tabs", len(browserContext.Pages())))

	return nil
}

func (m *Manager) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching new browser")

	browserOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Args:     launchArgs,
	}

	if path := m.config.BrowserConfig.ChromePath; path != "" {
		browserOptions.ExecutablePath = playwright.String(path)
	}

	browser, err := m.playwright.Chromium.Launch(browserOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: 1280, Height: 720},
		UserAgent:         playwright.String(userAgent),
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext
	m.setReady(true)
	logger.Info("Browser launched successfully")

	return nil
}

func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Closing browser...")

	m.setReady(false)

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	if m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
			})
		}
	}

	logger.Info("Browser closed")

	return nil
}

func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Manager) setReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *Manager) Pages(ctx context.Context) ([]ports.Page, error) {
	const op = "Pages"

	if !m.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	open := m.browserContext.Pages()
	out := make([]ports.Page, 0, len(open))
	live := make(map[playwright.Page]*page, len(open))

	for _, p := range open {
		if p.IsClosed() {
			continue
		}

		wrapped, ok := m.pages[p]
		if !ok {
			wrapped = m.wrap(p)
		}

		live[p] = wrapped
		out = append(out, wrapped)
	}

	m.pages = live

	return out, nil
}

func (m *Manager) NewPage(ctx context.Context, url string) (p ports.Page, err error) {
	const op = "NewPage"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if !m.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	raw, err := m.browserContext.NewPage()
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.mu.Lock()
	wrapped := m.wrap(raw)
	m.pages[raw] = wrapped
	m.mu.Unlock()

	if url != "" {
		if err := wrapped.Navigate(ctx, url); err != nil {
			return nil, err
		}
	}

	logger.Info("Opened new tab", zap.String(logg.TabID, wrapped.id))

	return wrapped, nil
}

func (m *Manager) wrap(p playwright.Page) *page {
	return &page{
		id:      uuid.NewString(),
		page:    p,
		timeout: float64(m.config.BrowserConfig.Timeout),
		logger:  m.logger,
	}
}

// page adapts a playwright tab to ports.Page.
type page struct {
	id      string
	page    playwright.Page
	timeout float64
	logger  *zap.Logger
}

func (p *page) ID() string     { return p.id }
func (p *page) URL() string    { return p.page.URL() }
func (p *page) IsClosed() bool { return p.page.IsClosed() }

func (p *page) Navigate(ctx context.Context, url string) error {
	const op = "Navigate"

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(p.timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	return nil
}

// Evaluate passes arg through JSON so playwright receives plain maps.
func (p *page) Evaluate(ctx context.Context, expr string, arg any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(arg)
	if err != nil {
		return nil, fmt.Errorf("encode evaluate argument: %w", err)
	}

	var plain any
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return nil, fmt.Errorf("decode evaluate argument: %w", err)
	}

	result, err := p.page.Evaluate(expr, plain)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

func (p *page) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return errors.New("empty key")
	}

	if utf8.RuneCountInString(key) == 1 {
		return p.page.Keyboard().Type(key)
	}

	return p.page.Keyboard().Press(key)
}
