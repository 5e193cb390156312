package query

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Wuchinator/landing-analytics/internal/analytics"
	"github.com/Wuchinator/landing-analytics/internal/kv"
	"github.com/Wuchinator/landing-analytics/internal/storage"
)

const (
	DefaultTimelineDays = 7
	MaxTimelineDays     = 90
	MaxHistoryDays      = 366

	readConcurrency = 8
)

// HistoryRepository reads daily rollups.
type HistoryRepository interface {
	GetDailyRange(ctx context.Context, from, to time.Time, metric string) ([]*analytics.DailyMetric, error)
}

type Service struct {
	store   *storage.Store
	history HistoryRepository
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewService builds the stats reader. history may be nil when rollups are
// disabled.
func NewService(store *storage.Store, history HistoryRepository, clock clockwork.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		history: history,
		clock:   clock,
		logger:  logger,
	}
}

// Snapshot reads every dashboard value concurrently. Storage reads degrade to
// zero on their own, so the only error is a cancelled context.
func (s *Service) Snapshot(ctx context.Context, days int) (*Snapshot, error) {
	if days <= 0 {
		days = DefaultTimelineDays
	}
	days = min(days, MaxTimelineDays)

	now := s.clock.Now().UTC()
	today := storage.Day(now)

	snap := &Snapshot{
		Timeline:    make([]TimelinePoint, days),
		LastUpdated: now,
	}
	var (
		engagedMs float64
		scroll    = make([]int64, len(storage.ScrollMilestones))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	counter := func(dst *int64, key string) {
		g.Go(func() error {
			*dst = s.store.Counters.Get(gctx, key)
			return nil
		})
	}
	unique := func(dst *int64, scope string) {
		g.Go(func() error {
			*dst = s.store.Visitors.CountUnique(gctx, scope)
			return nil
		})
	}

	counter(&snap.Visitors.Total, storage.PageviewsTotal)
	counter(&snap.Visitors.Today, storage.PageviewsDay(today))
	unique(&snap.Visitors.Unique, storage.VisitorsUnique)
	unique(&snap.Visitors.UniqueToday, storage.VisitorsUniqueDay(today))
	counter(&snap.Clicks.Total, storage.ClicksTotal)
	counter(&snap.Clicks.Today, storage.ClicksDay(today))
	counter(&snap.Leads.Total, storage.LeadsTotal)
	counter(&snap.Leads.Today, storage.LeadsDay(today))
	counter(&snap.CheckoutForms.Total, storage.CheckoutFormsTotal)
	counter(&snap.CheckoutForms.Today, storage.CheckoutFormsDay(today))
	counter(&snap.Abandonment.Total, storage.AbandonedTotal)
	counter(&snap.Abandonment.Today, storage.AbandonedDay(today))
	counter(&snap.Errors.Total, storage.ErrorsTotal)
	counter(&snap.Errors.Today, storage.ErrorsDay(today))
	for i, depth := range storage.ScrollMilestones {
		counter(&scroll[i], storage.ScrollDepth(depth))
	}
	for i := range snap.Timeline {
		day := storage.Day(now.AddDate(0, 0, i-days+1))
		snap.Timeline[i].Date = day
		counter(&snap.Timeline[i].Visitors, storage.PageviewsDay(day))
		counter(&snap.Timeline[i].Clicks, storage.ClicksDay(day))
	}

	g.Go(func() error {
		engagedMs = s.store.Engagement.Average(gctx)
		return nil
	})
	g.Go(func() error {
		snap.ActiveVisitors = s.store.Active.Count(gctx)
		return nil
	})
	g.Go(func() error {
		snap.Storage = kv.CheckStatus(gctx, s.store.Backend)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot cancelled: %w", err)
	}

	snap.Clicks.Rate = Rate(snap.Clicks.Total, snap.Visitors.Total)
	snap.Leads.ConversionRate = Rate(snap.Leads.Total, snap.Visitors.Total)
	snap.CheckoutForms.ConversionRate = Rate(snap.CheckoutForms.Total, snap.Leads.Total)
	snap.Abandonment.Rate = Rate(snap.Abandonment.Total, snap.CheckoutForms.Total)
	snap.AverageTime = int64(math.Round(engagedMs / 1000))
	snap.ScrollDepth = scrollDepth(scroll)

	s.logger.Debug("Stats snapshot composed",
		zap.Int("days", days),
		zap.Int64("pageviews", snap.Visitors.Total),
		zap.String("storage", snap.Storage.Type),
	)
	return snap, nil
}

// Rate returns part/whole as a percentage, 0 when whole is 0.
func Rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func scrollDepth(counts []int64) ScrollDepth {
	result := ScrollDepth{Distribution: make([]ScrollBucket, len(counts))}
	var total, weighted int64
	for i, count := range counts {
		depth := storage.ScrollMilestones[i]
		result.Distribution[i] = ScrollBucket{Depth: depth, Count: count}
		total += count
		weighted += count * int64(depth)
	}
	if total > 0 {
		result.Average = int64(math.Round(float64(weighted) / float64(total)))
	}
	return result
}

// History returns rolled-up daily values between from and to inclusive,
// optionally for one metric.
func (s *Service) History(ctx context.Context, from, to time.Time, metric string) (*History, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	if metric != "" && !slices.Contains(analytics.Metrics(), metric) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) || to.Sub(from) > MaxHistoryDays*24*time.Hour {
		return nil, ErrInvalidRange
	}

	rows, err := s.history.GetDailyRange(ctx, from, to, metric)
	if err != nil {
		s.logger.Error("Failed to get daily history",
			zap.Error(err),
			zap.Time("from", from),
			zap.Time("to", to),
		)
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	history := &History{
		From:    storage.Day(from),
		To:      storage.Day(to),
		Metric:  metric,
		Entries: make([]HistoryEntry, 0, len(rows)),
	}
	for _, row := range rows {
		history.Entries = append(history.Entries, HistoryEntry{
			Date:   storage.Day(row.Date),
			Metric: row.Metric,
			Value:  row.Value,
		})
	}

	s.logger.Info("History retrieved",
		zap.Int("count", len(history.Entries)),
		zap.String("metric", metric),
	)
	return history, nil
}
