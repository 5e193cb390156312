package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS analytics_daily (
		date       DATE        NOT NULL,
		metric     TEXT        NOT NULL,
		value      BIGINT      NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (date, metric)
	)
`

type Repository interface {
	EnsureSchema(ctx context.Context) error
	UpsertDaily(ctx context.Context, metrics []*DailyMetric) error
	GetDailyRange(ctx context.Context, from, to time.Time, metric string) ([]*DailyMetric, error)
}

type repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRepository(db *sqlx.DB, logger *zap.Logger) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

func (r *repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create analytics_daily: %w", err)
	}
	return nil
}

// UpsertDaily keeps the larger of the stored and new value. The KV counters
// are cumulative for the day, so a smaller reading means lost KV data.
func (r *repository) UpsertDaily(ctx context.Context, metrics []*DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO analytics_daily (date, metric, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, metric)
		DO UPDATE SET
			value = GREATEST(analytics_daily.value, EXCLUDED.value),
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, m.Date, m.Metric, m.Value, m.UpdatedAt); err != nil {
			r.logger.Error("Failed to upsert daily metric",
				zap.String("date", m.Date.Format("2006-01-02")),
				zap.String("metric", m.Metric),
				zap.Error(err),
			)
			return fmt.Errorf("failed to upsert %s: %w", m.Metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Daily metrics upserted", zap.Int("rows", len(metrics)))
	return nil
}

func (r *repository) GetDailyRange(ctx context.Context, from, to time.Time, metric string) ([]*DailyMetric, error) {
	query := `
		SELECT date, metric, value, updated_at
		FROM analytics_daily
		WHERE date >= $1 AND date <= $2
	`
	args := []any{from, to}

	if metric != "" {
		query += " AND metric = $3"
		args = append(args, metric)
	}

	query += " ORDER BY date, metric"

	var metrics []*DailyMetric
	if err := r.db.SelectContext(ctx, &metrics, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get daily metrics: %w", err)
	}

	return metrics, nil
}
