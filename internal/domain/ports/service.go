package ports

import (
	"context"

	"bitcoin-rates-service/internal/domain/model"
)

type RateService interface {
	GetRates(ctx context.Context) (*model.RateSnapshot, error)
	RefreshRates(ctx context.Context) error
	Quote(ctx context.Context, request model.QuoteRequest) (*model.Quote, error)
	Convert(request model.ConversionRequest) (*model.ConversionResult, error)
	Change(ctx context.Context, currency model.Currency) (*model.RateChange, error)
	Volatility(ctx context.Context, currency model.Currency) (*model.VolatilityReport, error)
	CacheStats(ctx context.Context) model.CacheStats
	CleanupCache(ctx context.Context) int
	ClearCache(ctx context.Context) bool
}
