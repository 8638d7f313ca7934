package adapters

import (
	"context"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/entity"
)

type SessionService interface {
	EnsureSession(ctx context.Context) (entity.Session, *automation.Kit, error)
	CheckStatus(ctx context.Context) entity.Status
}

type BatchService interface {
	RunBatch(ctx context.Context, req entity.BatchRequest) (*entity.Report, error)
}

type DiscoveryService interface {
	Groups(ctx context.Context) ([]entity.Group, error)
	Labels(ctx context.Context) (entity.LabelsResult, error)
	Contacts(ctx context.Context) ([]entity.Contact, error)
}

type SettingsService interface {
	Get(ctx context.Context) (entity.Settings, error)
	ToggleAutoReply(ctx context.Context, enabled bool) (entity.Settings, error)
	UpdateAutoReplyTemplate(ctx context.Context, template string) (entity.Settings, error)
	UpdateWelcomeMessage(ctx context.Context, message string) (entity.Settings, error)
}

type AutoReplyService interface {
	Run(ctx context.Context)
}

type CommandService interface {
	Dispatch(ctx context.Context, cmd entity.Command) entity.Result
}
