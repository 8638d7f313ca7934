package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/ports"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const settingsServiceName = "SettingsService"

// SettingsService reads and updates the persisted operator settings. Every
// call goes to the store; nothing is cached between operations.
type SettingsService struct {
	store  ports.SettingsStore
	logger *zap.Logger

	// serializes load-modify-save so concurrent updates do not drop each other
	mu sync.Mutex
}

type SettingsServiceParams struct {
	fx.In

	Store  ports.SettingsStore
	Logger *zap.Logger
}

func NewSettingsService(params SettingsServiceParams) *SettingsService {
	return &SettingsService{
		store:  params.Store,
		logger: params.Logger.With(zap.String(logg.Layer, settingsServiceName)),
	}
}

func (s *SettingsService) Get(ctx context.Context) (entity.Settings, error) {
	return s.store.LoadSettings(ctx)
}

func (s *SettingsService) ToggleAutoReply(ctx context.Context, enabled bool) (entity.Settings, error) {
	return s.update(ctx, func(settings *entity.Settings) error {
		settings.AutoReplyEnabled = enabled
		return nil
	})
}

func (s *SettingsService) UpdateAutoReplyTemplate(ctx context.Context, template string) (entity.Settings, error) {
	return s.update(ctx, func(settings *entity.Settings) error {
		if strings.TrimSpace(template) == "" {
			return apperr.InvalidReqError("UpdateAutoReplyTemplate", "template", errors.New("auto-reply template cannot be empty"))
		}

		settings.AutoReplyTemplate = template

		return nil
	})
}

func (s *SettingsService) UpdateWelcomeMessage(ctx context.Context, message string) (entity.Settings, error) {
	return s.update(ctx, func(settings *entity.Settings) error {
		if strings.TrimSpace(message) == "" {
			return apperr.InvalidReqError("UpdateWelcomeMessage", "message", errors.New("welcome message cannot be empty"))
		}

		settings.WelcomeMessage = message

		return nil
	})
}

func (s *SettingsService) update(ctx context.Context, apply func(*entity.Settings) error) (entity.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		return settings, err
	}

	if err := apply(&settings); err != nil {
		return settings, err
	}

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return settings, err
	}

	s.logger.Info("Settings updated",
		zap.Bool("auto_reply", settings.AutoReplyEnabled),
		zap.String("welcome", settings.WelcomeMessage))

	return settings, nil
}
