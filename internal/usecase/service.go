package usecase

import (
	"wa-blaster/internal/config"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/selectors"
	"wa-blaster/internal/usecase/adapters"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Sessions  adapters.SessionService
	Batches   adapters.BatchService
	Discovery adapters.DiscoveryService
	Settings  adapters.SettingsService
	AutoReply adapters.AutoReplyService
	Commands  adapters.CommandService
}

type Params struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Browser  ports.Browser
	Catalog  *selectors.Catalog
	Settings ports.SettingsStore
	Reports  ports.ReportStore
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Sessions:  factory.sessions,
		Batches:   factory.orchestrator,
		Discovery: factory.discovery,
		Settings:  factory.settings,
		AutoReply: factory.CreateAutoReplyService(),
		Commands:  factory.CreateCommandService(),
	}
}
