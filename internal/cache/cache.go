package cache

import (
	"context"
	"time"

	"gudangtoko/backend/internal/domain"
)

// ReportCache holds computed daily sales reports. A miss is (nil, false, nil).
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SalesReport, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesReport, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// NoopReportCache is used when REDIS_ADDR is unset; every lookup misses.
type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SalesReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SalesReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
