package bootstrap

import (
	"time"
	"wa-blaster/internal/browser"
	"wa-blaster/internal/config"
	"wa-blaster/internal/console"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/selectors"
	"wa-blaster/internal/store"
	amqptransport "wa-blaster/internal/transport/amqp"
	"wa-blaster/internal/usecase"

	"go.uber.org/fx"
)

// Core wires configuration, logging, tracing, the browser, the store and
// the usecases. The browser is launched on start and closed on stop.
func Core() fx.Option {
	return fx.Options(
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,

			newBrowser,
			newCatalog,
			newStore,
			func(s *store.SQLite) ports.SettingsStore { return s },
			func(s *store.SQLite) ports.ReportStore { return s },

			usecase.NewUsecase,
		),

		fx.Invoke(
			registerTracing,
			runBrowser,
		),

		fx.StartTimeout(2*time.Minute),
	)
}

// NewApp is the long-running service: the console, the auto-reply loop
// and, when AMQP_URL is set, the command consumer.
func NewApp(opts ...fx.Option) *fx.App {
	return fx.New(
		Core(),

		fx.Provide(
			console.NewInterface,
			amqptransport.NewClient,
		),

		fx.Invoke(
			runAutoReply,
			runTransport,
			runConsole,
		),

		fx.Options(opts...),
	)
}

func newBrowser(params browser.Params) ports.Browser {
	if params.Config.BrowserConfig.Driver == config.DriverChromedp {
		return browser.NewCDPManager(params)
	}

	return browser.NewManager(params)
}

func newCatalog(cfg *config.Config) (*selectors.Catalog, error) {
	return selectors.Load(cfg.AutomationConfig.SelectorsFile)
}
