package ports

import (
	"context"
	"encoding/json"
	"wa-blaster/internal/entity"

	"github.com/google/uuid"
)

// Page is one browser tab. Evaluate runs expr, a JS function expression,
// with arg serialized to JSON as its only argument, awaits the returned
// promise and hands back the JSON-encoded result.
type Page interface {
	ID() string
	URL() string
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string, arg any) (json.RawMessage, error)
	// Press sends one native keystroke: a key name such as "Enter" or
	// "Shift+Enter", or a single printable character.
	Press(ctx context.Context, key string) error
	IsClosed() bool
}

type Browser interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Pages(ctx context.Context) ([]Page, error)
	NewPage(ctx context.Context, url string) (Page, error)
	IsReady() bool
}

type SettingsStore interface {
	LoadSettings(ctx context.Context) (entity.Settings, error)
	SaveSettings(ctx context.Context, settings entity.Settings) error
}

type ReportStore interface {
	SaveReport(ctx context.Context, report *entity.Report) error
	RecentReports(ctx context.Context, limit int) ([]entity.ReportSummary, error)
	LoadReport(ctx context.Context, id uuid.UUID) (*entity.Report, error)
}
