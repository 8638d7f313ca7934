package usecase

import (
	"wa-blaster/internal/automation"
	"wa-blaster/internal/usecase/adapters"
)

// serviceFactory builds the services around one session manager and one
// busy gate so batches and auto-replies share the same tab.
type serviceFactory struct {
	deps         Params
	gate         *Gate
	sessions     *SessionManager
	orchestrator *Orchestrator
	discovery    *DiscoveryService
	settings     *SettingsService
}

func newServiceFactory(deps Params) *serviceFactory {
	f := &serviceFactory{
		deps: deps,
		gate: NewGate(),
	}

	f.sessions = f.CreateSessionService()
	f.orchestrator = f.CreateBatchService()
	f.discovery = f.CreateDiscoveryService()
	f.settings = f.CreateSettingsService()

	return f
}

func (f *serviceFactory) CreateSessionService() *SessionManager {
	return NewSessionManager(SessionManagerParams{
		Browser: f.deps.Browser,
		Catalog: f.deps.Catalog,
		Options: automation.OptionsFromConfig(f.deps.Config.AutomationConfig),
		Warmup:  f.deps.Config.AutomationConfig.Warmup(),
		Logger:  f.deps.Logger,
	})
}

func (f *serviceFactory) CreateBatchService() *Orchestrator {
	cfg := f.deps.Config.AutomationConfig

	return NewOrchestrator(OrchestratorParams{
		Sessions:         f.sessions,
		Gate:             f.gate,
		Settings:         f.deps.Settings,
		Reports:          f.deps.Reports,
		DelayBuffer:      cfg.DelayBuffer(),
		RecipientTimeout: cfg.RecipientTimeout(),
		MaxPerMinute:     cfg.MaxPerMinute,
		Logger:           f.deps.Logger,
	})
}

func (f *serviceFactory) CreateDiscoveryService() *DiscoveryService {
	return NewDiscoveryService(DiscoveryServiceParams{
		Sessions: f.sessions,
		Gate:     f.gate,
		Logger:   f.deps.Logger,
	})
}

func (f *serviceFactory) CreateSettingsService() *SettingsService {
	return NewSettingsService(SettingsServiceParams{
		Store:  f.deps.Settings,
		Logger: f.deps.Logger,
	})
}

func (f *serviceFactory) CreateAutoReplyService() adapters.AutoReplyService {
	return NewAutoResponder(AutoResponderParams{
		Sessions: f.sessions,
		Gate:     f.gate,
		Settings: f.deps.Settings,
		Interval: f.deps.Config.AutomationConfig.AutoReplyInterval(),
		Logger:   f.deps.Logger,
	})
}

func (f *serviceFactory) CreateCommandService() adapters.CommandService {
	return NewDispatcher(DispatcherParams{
		Batches:   f.orchestrator,
		Sessions:  f.sessions,
		Discovery: f.discovery,
		Settings:  f.settings,
		Reports:   f.deps.Reports,
		Logger:    f.deps.Logger,
	})
}
