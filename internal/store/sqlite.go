package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/ports"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	storeName   = "SQLiteStore"
	storeTracer = "store.sqlite"

	keyAutoReplyEnabled  = "auto_reply_enabled"
	keyAutoReplyTemplate = "auto_reply_template"
	keyWelcomeMessage    = "welcome_message"

	// fixed width so started_at sorts as text
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_reports (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	success      INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	invalid      INTEGER NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	results_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_reports_started ON batch_reports(started_at);
`

// SQLite keeps operator settings as key/value rows and one row per
// finished batch.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	tracer trace.Tracer
}

var (
	_ ports.SettingsStore = (*SQLite)(nil)
	_ ports.ReportStore   = (*SQLite)(nil)
)

func Open(path string, logger *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize store schema: %w", err)
	}

	return &SQLite{
		db:     db,
		path:   path,
		logger: logger.With(zap.String(logg.Layer, storeName)),
		tracer: otel.Tracer(storeTracer),
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Path() string {
	return s.path
}

// LoadSettings returns the stored settings, filling unset keys with defaults.
func (s *SQLite) LoadSettings(ctx context.Context) (settings entity.Settings, err error) {
	const op = "LoadSettings"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	settings = entity.DefaultSettings()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, storeErr(op, err, "query_settings_failed")
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, storeErr(op, err, "scan_settings_failed")
		}

		switch key {
		case keyAutoReplyEnabled:
			settings.AutoReplyEnabled, _ = strconv.ParseBool(value)
		case keyAutoReplyTemplate:
			settings.AutoReplyTemplate = value
		case keyWelcomeMessage:
			settings.WelcomeMessage = value
		}
	}

	if err := rows.Err(); err != nil {
		return settings, storeErr(op, err, "iterate_settings_failed")
	}

	return settings, nil
}

func (s *SQLite) SaveSettings(ctx context.Context, settings entity.Settings) (err error) {
	const op = "SaveSettings"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, err, "begin_failed")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(timeLayout)
	values := map[string]string{
		keyAutoReplyEnabled:  strconv.FormatBool(settings.AutoReplyEnabled),
		keyAutoReplyTemplate: settings.AutoReplyTemplate,
		keyWelcomeMessage:    settings.WelcomeMessage,
	}

	for key, value := range values {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			return storeErr(op, err, "upsert_setting_failed")
		}
	}

	if err = tx.Commit(); err != nil {
		return storeErr(op, err, "commit_failed")
	}

	logger.Debug("Settings saved")

	return nil
}

func (s *SQLite) SaveReport(ctx context.Context, report *entity.Report) (err error) {
	const op = "SaveReport"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.BatchID, report.ID.String()))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	results, err := json.Marshal(report.Results)
	if err != nil {
		return storeErr(op, err, "encode_results_failed")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_reports (id, kind, success, failed, invalid, started_at, finished_at, results_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID.String(),
		string(report.Kind),
		report.Counts.Success,
		report.Counts.Failed,
		report.Counts.Invalid,
		report.StartedAt.UTC().Format(timeLayout),
		report.FinishedAt.UTC().Format(timeLayout),
		string(results))
	if err != nil {
		return storeErr(op, err, "insert_report_failed")
	}

	return nil
}

// RecentReports returns up to limit batch headers, newest first.
func (s *SQLite) RecentReports(ctx context.Context, limit int) (summaries []entity.ReportSummary, err error) {
	const op = "RecentReports"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, success, failed, invalid, started_at, finished_at
		FROM batch_reports
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr(op, err, "query_reports_failed")
	}
	defer rows.Close()

	summaries = []entity.ReportSummary{}

	for rows.Next() {
		var (
			id, kind, started, finished string
			summary                     entity.ReportSummary
		)

		if err := rows.Scan(&id, &kind, &summary.Counts.Success, &summary.Counts.Failed,
			&summary.Counts.Invalid, &started, &finished); err != nil {
			return nil, storeErr(op, err, "scan_report_failed")
		}

		if summary.ID, err = uuid.Parse(id); err != nil {
			return nil, storeErr(op, err, "parse_report_id_failed")
		}

		summary.Kind = entity.BatchKind(kind)
		summary.StartedAt, _ = time.Parse(timeLayout, started)
		summary.FinishedAt, _ = time.Parse(timeLayout, finished)

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err, "iterate_reports_failed")
	}

	return summaries, nil
}

// LoadReport returns the full stored report, including every outcome.
func (s *SQLite) LoadReport(ctx context.Context, id uuid.UUID) (*entity.Report, error) {
	const op = "LoadReport"

	var (
		kind, started, finished, results string
		report                           = &entity.Report{ID: id}
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT kind, success, failed, invalid, started_at, finished_at, results_json
		FROM batch_reports WHERE id = ?`, id.String()).
		Scan(&kind, &report.Counts.Success, &report.Counts.Failed, &report.Counts.Invalid,
			&started, &finished, &results)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundError(op, fmt.Errorf("report %s not found", id))
	}
	if err != nil {
		return nil, storeErr(op, err, "query_report_failed")
	}

	if err := json.Unmarshal([]byte(results), &report.Results); err != nil {
		return nil, storeErr(op, err, "decode_results_failed")
	}

	report.Kind = entity.BatchKind(kind)
	report.StartedAt, _ = time.Parse(timeLayout, started)
	report.FinishedAt, _ = time.Parse(timeLayout, finished)

	return report, nil
}

func storeErr(op string, err error, reason string) error {
	return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
		apperr.MetaReason: reason,
		apperr.MetaStage:  apperr.StageStore,
	})
}
