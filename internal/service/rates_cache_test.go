package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitcoin-rates-service/internal/adapter/cache"
	"bitcoin-rates-service/internal/domain/model"
	"bitcoin-rates-service/pkg/logger"
)

// switchableRepository serves usd until failing is set.
type switchableRepository struct {
	now     func() time.Time
	usd     float64
	failing bool
}

func (r *switchableRepository) FetchRates(ctx context.Context, currencies []model.Currency) (*model.RateSnapshot, error) {
	if r.failing {
		return nil, errors.New("API error")
	}
	return &model.RateSnapshot{
		Rates:     map[model.Currency]float64{model.USD: r.usd},
		Source:    "coingecko",
		FetchedAt: r.now().UTC(),
	}, nil
}

func newTieredTestService(t *testing.T) (*RateService, *cache.TieredCache, *switchableRepository, func(time.Duration)) {
	t.Helper()

	clk := newTestClock()
	log := logger.NewLogger("error")
	tiered := cache.NewTieredCache(cache.NewMapStore(), log,
		cache.WithClock(clk),
		cache.WithDefaultTTL(DefaultRatesTTL),
	)
	repo := &switchableRepository{now: clk.Now}
	svc := NewRateService(repo, tiered, log, WithClock(clk))
	return svc, tiered, repo, clk.Add
}

func TestRateService_TieredCacheLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, tiered, repo, advance := newTieredTestService(t)

	repo.usd = 50000
	first, err := svc.GetRates(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first.Offline || first.Rates[model.USD] != 50000 {
		t.Fatalf("Expected fresh rates, got %+v", first)
	}

	advance(DefaultRatesTTL + time.Minute)
	repo.usd = 55000
	second, err := svc.GetRates(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if second.Rates[model.USD] != 55000 {
		t.Fatalf("Expected expired rates to be refetched, got %v", second.Rates[model.USD])
	}

	// History is read back from the persistent tier.
	tiered.ClearMemory(ctx)
	change, err := svc.Change(ctx, model.USD)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if change.Previous != 50000 || change.Current != 55000 || change.PercentChange != 10 {
		t.Errorf("Unexpected change: %+v", change)
	}

	advance(DefaultRatesTTL + time.Minute)
	repo.failing = true

	offline, err := svc.GetRates(ctx)
	if err != nil {
		t.Fatalf("Expected offline rates, got error: %v", err)
	}
	if !offline.Offline || offline.Rates[model.USD] != 55000 {
		t.Errorf("Expected offline snapshot at 55000, got %+v", offline)
	}
	if !offline.FetchedAt.Equal(second.FetchedAt) {
		t.Errorf("Expected fetched_at %v, got %v", second.FetchedAt, offline.FetchedAt)
	}

	// A cleanup sweep and a restart still leave the last known snapshot.
	tiered.Cleanup(ctx)
	tiered.ClearMemory(ctx)
	again, err := svc.GetRates(ctx)
	if err != nil {
		t.Fatalf("Expected offline rates after cleanup, got error: %v", err)
	}
	if !again.Offline || again.Rates[model.USD] != 55000 {
		t.Errorf("Expected offline snapshot at 55000, got %+v", again)
	}
}

func TestRateService_TieredCacheNoData(t *testing.T) {
	svc, _, repo, _ := newTieredTestService(t)
	repo.failing = true

	_, err := svc.GetRates(context.Background())
	if !errors.Is(err, ErrRatesUnavailable) {
		t.Errorf("Expected ErrRatesUnavailable, got: %v", err)
	}
}
