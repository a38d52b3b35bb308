package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raulk/clock"

	"bitcoin-rates-service/internal/domain/model"
	"bitcoin-rates-service/internal/domain/ratecalc"
	"bitcoin-rates-service/pkg/logger"
)

var ErrAllProvidersFailed = errors.New("all exchange rate providers failed")

// FetchRecorder receives one event per provider attempt.
type FetchRecorder interface {
	RateFetch(source, outcome string)
}

type nopFetchRecorder struct{}

func (nopFetchRecorder) RateFetch(string, string) {}

type FetcherOption func(*RateFetcher)

func WithFetchRecorder(r FetchRecorder) FetcherOption {
	return func(f *RateFetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithBackOff replaces the exponential policy used between retries.
func WithBackOff(newBackOff func() backoff.BackOff) FetcherOption {
	return func(f *RateFetcher) { f.newBackOff = newBackOff }
}

func WithFetcherClock(clk clock.Clock) FetcherOption {
	return func(f *RateFetcher) { f.clock = clk }
}

// RateFetcher asks each provider in order and returns the first usable
// answer. Every provider is retried with backoff before moving on.
type RateFetcher struct {
	providers  []Provider
	maxRetries uint64
	newBackOff func() backoff.BackOff
	clock      clock.Clock
	recorder   FetchRecorder
	log        *logger.Logger
}

func NewRateFetcher(providers []Provider, maxRetries int, log *logger.Logger, opts ...FetcherOption) *RateFetcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	f := &RateFetcher{
		providers:  providers,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 15 * time.Second
			return b
		},
		clock:    clock.New(),
		recorder: nopFetchRecorder{},
		log:      log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *RateFetcher) FetchRates(ctx context.Context, currencies []model.Currency) (*model.RateSnapshot, error) {
	f.log.Info("Fetching bitcoin exchange rates", "currencies", len(currencies))

	var lastErr error
	for _, provider := range f.providers {
		rates, err := f.fetchWithRetry(ctx, provider, currencies)
		if err != nil {
			f.log.Warn("Exchange rate provider failed", "source", provider.Name(), "error", err)
			f.recorder.RateFetch(provider.Name(), "error")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		usable := f.filterRates(provider.Name(), rates, currencies)
		if len(usable) == 0 {
			f.log.Warn("Exchange rate provider returned no usable rates", "source", provider.Name())
			f.recorder.RateFetch(provider.Name(), "empty")
			lastErr = fmt.Errorf("%s returned no usable rates", provider.Name())
			continue
		}

		f.recorder.RateFetch(provider.Name(), "success")
		f.log.Info("Fetched bitcoin exchange rates", "source", provider.Name(), "count", len(usable))
		return &model.RateSnapshot{
			Rates:     usable,
			Source:    provider.Name(),
			FetchedAt: f.clock.Now().UTC(),
		}, nil
	}

	if lastErr == nil {
		return nil, ErrAllProvidersFailed
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

func (f *RateFetcher) fetchWithRetry(ctx context.Context, provider Provider, currencies []model.Currency) (map[model.Currency]float64, error) {
	var rates map[model.Currency]float64
	operation := func() error {
		var err error
		rates, err = provider.Fetch(ctx, currencies)
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.log.Debug("Retrying exchange rate provider", "source", provider.Name(), "error", err, "wait", wait)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return rates, nil
}

// filterRates keeps requested currencies whose rate passes the sanity check.
func (f *RateFetcher) filterRates(source string, rates map[model.Currency]float64, currencies []model.Currency) map[model.Currency]float64 {
	usable := make(map[model.Currency]float64, len(currencies))
	for _, cur := range currencies {
		rate, ok := rates[cur]
		if !ok {
			continue
		}
		if !ratecalc.ValidateBitcoinRate(rate) {
			f.log.Warn("Discarding implausible bitcoin rate", "source", source, "currency", cur, "rate", rate)
			continue
		}
		usable[cur] = rate
	}
	return usable
}
