package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:stats"

type dashboardBookCounter interface {
	CountAll(ctx context.Context) (int, error)
}

type dashboardLoanCounter interface {
	CountActive(ctx context.Context) (int, error)
	CountOverdue(ctx context.Context) (int, error)
}

type dashboardRequestCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// DashboardService aggregates circulation counts, cached between requests.
type DashboardService struct {
	books    dashboardBookCounter
	loans    dashboardLoanCounter
	requests dashboardRequestCounter
	cache    *CacheService
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the service. metrics may be nil.
func NewDashboardService(books dashboardBookCounter, loans dashboardLoanCounter, requests dashboardRequestCounter, cache *CacheService, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		books:    books,
		loans:    loans,
		requests: requests,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Stats returns dashboard counters and whether they came from cache.
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, bool, error) {
	var cached models.DashboardStats
	if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("dashboard_counts", time.Since(start)) }()

	totalBooks, err := s.books.CountAll(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count books")
	}
	activeLoans, err := s.loans.CountActive(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active loans")
	}
	overdueLoans, err := s.loans.CountOverdue(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count overdue loans")
	}
	pendingRequests, err := s.requests.CountPending(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending requests")
	}

	stats := &models.DashboardStats{
		TotalBooks:      totalBooks,
		ActiveLoans:     activeLoans,
		OverdueLoans:    overdueLoans,
		PendingRequests: pendingRequests,
		GeneratedAt:     s.now().UTC(),
	}

	if err := s.cache.Set(ctx, dashboardCacheKey, stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache dashboard stats", zap.Error(err))
	}

	return stats, false, nil
}

// Invalidate drops the cached counters. Called after mutations that change
// any of them.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
