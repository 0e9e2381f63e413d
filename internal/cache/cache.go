package cache

import (
	"context"
	"time"

	"tokoledger/backend/internal/domain"
)

// ReportCache holds read-side report snapshots. Ledger writes never go
// through it; only the daily summary and low-stock views are cached.
type ReportCache interface {
	GetDailySummary(ctx context.Context, key string) (*domain.DailySummary, bool, error)
	SetDailySummary(ctx context.Context, key string, value *domain.DailySummary, ttl time.Duration) error
	InvalidateDailySummary(ctx context.Context, key string) error
	GetLowStock(ctx context.Context, key string) (*domain.LowStockResponse, bool, error)
	SetLowStock(ctx context.Context, key string, value *domain.LowStockResponse, ttl time.Duration) error
	InvalidateLowStock(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetDailySummary(_ context.Context, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetDailySummary(_ context.Context, _ string, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidateDailySummary(_ context.Context, _ string) error {
	return nil
}

func (NoopReportCache) GetLowStock(_ context.Context, _ string) (*domain.LowStockResponse, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetLowStock(_ context.Context, _ string, _ *domain.LowStockResponse, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidateLowStock(_ context.Context, _ string) error {
	return nil
}
