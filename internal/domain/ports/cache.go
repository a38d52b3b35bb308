package ports

import (
	"context"
	"encoding/json"
	"time"

	"bitcoin-rates-service/internal/domain/model"
)

type RateCache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context) bool
	OfflineData(ctx context.Context) (json.RawMessage, bool)
	Cleanup(ctx context.Context) int
	Stats(ctx context.Context) model.CacheStats
}
