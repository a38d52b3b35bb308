package ports

import (
	"context"

	"bitcoin-rates-service/internal/domain/model"
)

type RateRepository interface {
	FetchRates(ctx context.Context, currencies []model.Currency) (*model.RateSnapshot, error)
}
