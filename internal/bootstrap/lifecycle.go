package bootstrap

import (
	"context"
	"errors"
	"wa-blaster/internal/config"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/store"
	amqptransport "wa-blaster/internal/transport/amqp"
	"wa-blaster/internal/usecase"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func registerTracing(*sdktrace.TracerProvider) {}

func runBrowser(lc fx.Lifecycle, browser ports.Browser, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Launching browser...", zap.String("driver", cfg.BrowserConfig.Driver))

			if err := browser.Launch(ctx); err != nil {
				logger.Error("Failed to launch browser", zap.Error(err))

				return err
			}

			logger.Info("Browser launched successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := browser.Close(ctx); err != nil {
				logger.Error("Failed to close browser", zap.Error(err))
			}

			return nil
		},
	})
}

func newStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*store.SQLite, error) {
	s, err := store.Open(cfg.StoreConfig.Path, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Store opened", zap.String("path", s.Path()))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})

	return s, nil
}

// background runs fn until the app stops.
func background(lc fx.Lifecycle, logger *zap.Logger, name string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				fn(ctx)
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
			case <-stopCtx.Done():
				logger.Warn("Background task did not stop in time", zap.String("task", name))
			}

			return nil
		},
	})
}

func runAutoReply(lc fx.Lifecycle, svc *usecase.Service, logger *zap.Logger) {
	background(lc, logger, "auto-reply", svc.AutoReply.Run)
}

func runTransport(lc fx.Lifecycle, client *amqptransport.Client, logger *zap.Logger) {
	if !client.Enabled() {
		logger.Info("AMQP_URL not set, command consumer disabled")
		return
	}

	background(lc, logger, "amqp", func(ctx context.Context) {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("AMQP consumer stopped", zap.Error(err))
		}
	})
}
