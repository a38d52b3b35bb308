package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raulk/clock"

	"bitcoin-rates-service/internal/domain/model"
	"bitcoin-rates-service/internal/domain/ports"
	"bitcoin-rates-service/internal/domain/ratecalc"
	"bitcoin-rates-service/pkg/logger"
)

const (
	// RatesCacheKey holds the latest RateSnapshot. The offline lookup of the
	// cache tries this key first.
	RatesCacheKey = "bitcoin_rates"

	// LastKnownRatesKey keeps a copy of the latest snapshot that outlives
	// RatesCacheKey, so offline recovery still has data after the fresh
	// entry expired and was deleted.
	LastKnownRatesKey = "last_known_rates"

	// HistoryCacheKey must not contain "rates", or offline recovery could
	// return history instead of a snapshot.
	HistoryCacheKey = "price_history"

	DefaultRatesTTL   = 5 * time.Minute
	LastKnownRatesTTL = 30 * 24 * time.Hour
	HistoryTTL        = 7 * 24 * time.Hour
	MaxHistoryPoints  = 100
)

const (
	fiatLargePlaces  = 2
	fiatSmallPlaces  = 6
	percentagePlaces = 2
	volatilityPlaces = 4
)

var (
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDirection   = errors.New("invalid direction")
	ErrRateNotFound       = errors.New("exchange rate not found")
	ErrExternalAPIFailure = errors.New("external API failure")
	ErrRatesUnavailable   = errors.New("exchange rates unavailable")
	ErrNoHistory          = errors.New("not enough rate history")
)

type Option func(*RateService)

func WithRatesTTL(ttl time.Duration) Option {
	return func(s *RateService) {
		if ttl > 0 {
			s.ratesTTL = ttl
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(s *RateService) { s.clock = clk }
}

// WithFallback supplies rates of last resort for when neither the upstream
// nor the cache has anything.
func WithFallback(fallback func(now time.Time) *model.RateSnapshot) Option {
	return func(s *RateService) { s.fallback = fallback }
}

func WithCurrencies(currencies []model.Currency) Option {
	return func(s *RateService) {
		if len(currencies) > 0 {
			s.currencies = currencies
		}
	}
}

type RateService struct {
	repository ports.RateRepository
	cache      ports.RateCache
	log        *logger.Logger
	clock      clock.Clock
	ratesTTL   time.Duration
	currencies []model.Currency
	fallback   func(now time.Time) *model.RateSnapshot
}

var _ ports.RateService = (*RateService)(nil)

func NewRateService(repository ports.RateRepository, cache ports.RateCache, log *logger.Logger, opts ...Option) *RateService {
	s := &RateService{
		repository: repository,
		cache:      cache,
		log:        log,
		clock:      clock.New(),
		ratesTTL:   DefaultRatesTTL,
		currencies: model.SupportedCurrencies,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRates serves the cached snapshot while it is fresh, otherwise fetches a
// new one. When the fetch fails it falls back to offline data of any age and
// then to the configured fallback rates.
func (s *RateService) GetRates(ctx context.Context) (*model.RateSnapshot, error) {
	if data, found := s.cache.Get(ctx, RatesCacheKey); found {
		var snapshot model.RateSnapshot
		if err := json.Unmarshal(data, &snapshot); err == nil {
			s.log.Debug("Bitcoin rates found in cache", "source", snapshot.Source)
			return &snapshot, nil
		}
		s.log.Warn("Discarding undecodable cached rates")
	}

	snapshot, fetchErr := s.fetchAndStore(ctx)
	if fetchErr == nil {
		return snapshot, nil
	}
	s.log.Error("Failed to fetch bitcoin rates", "error", fetchErr)

	if data, found := s.cache.OfflineData(ctx); found {
		var offline model.RateSnapshot
		if err := json.Unmarshal(data, &offline); err == nil && len(offline.Rates) > 0 {
			offline.Offline = true
			s.log.Warn("Serving offline bitcoin rates", "fetched_at", offline.FetchedAt)
			return &offline, nil
		}
	}

	if s.fallback != nil {
		s.log.Warn("Serving fallback bitcoin rates")
		return s.fallback(s.clock.Now()), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrRatesUnavailable, fetchErr)
}

func (s *RateService) RefreshRates(ctx context.Context) error {
	s.log.Info("Refreshing bitcoin rates")

	if _, err := s.fetchAndStore(ctx); err != nil {
		return err
	}

	s.log.Info("Successfully refreshed bitcoin rates")
	return nil
}

func (s *RateService) fetchAndStore(ctx context.Context) (*model.RateSnapshot, error) {
	snapshot, err := s.repository.FetchRates(ctx, s.currencies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalAPIFailure, err)
	}

	for currency, rate := range snapshot.Rates {
		if !currency.IsSupported() || !ratecalc.ValidateBitcoinRate(rate) {
			s.log.Warn("Dropping implausible bitcoin rate", "currency", currency, "rate", rate)
			delete(snapshot.Rates, currency)
		}
	}
	if len(snapshot.Rates) == 0 {
		return nil, fmt.Errorf("%w: no plausible rates returned", ErrExternalAPIFailure)
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = s.clock.Now().UTC()
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rates: %w", err)
	}
	if !s.cache.Set(ctx, RatesCacheKey, data, s.ratesTTL) {
		s.log.Warn("Bitcoin rates cached in memory only")
	}
	s.cache.Set(ctx, LastKnownRatesKey, data, LastKnownRatesTTL)

	s.recordHistory(ctx, snapshot)
	return snapshot, nil
}

func (s *RateService) Quote(ctx context.Context, request model.QuoteRequest) (*model.Quote, error) {
	if !request.Currency.IsSupported() {
		return nil, ErrInvalidCurrency
	}
	if !request.Unit.Valid() {
		return nil, fmt.Errorf("%w: %v", ratecalc.ErrUnsupportedUnit, request.Unit)
	}
	direction := request.Direction
	if direction == "" {
		direction = model.FiatPerUnit
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirection, direction)
	}
	amount := request.Amount
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	snapshot, err := s.GetRates(ctx)
	if err != nil {
		return nil, err
	}
	btcRate, ok := snapshot.Rates[request.Currency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRateNotFound, request.Currency)
	}

	var value float64
	var places int
	switch direction {
	case model.FiatPerUnit:
		perUnit, err := ratecalc.FiatPerUnit(btcRate, request.Unit)
		if err != nil {
			return nil, err
		}
		value = perUnit * amount
		places = fiatPlaces(value)
	case model.UnitsPerFiat:
		value, err = ratecalc.UnitsPerFiat(btcRate, amount, request.Unit)
		if err != nil {
			return nil, err
		}
		places = ratecalc.Places(value, request.Unit)
	}

	rounded, err := ratecalc.ApplyPrecisionCustom(value, request.Unit, places)
	if err != nil {
		return nil, err
	}

	return &model.Quote{
		Currency:  request.Currency,
		Unit:      request.Unit,
		Direction: direction,
		BTCRate:   btcRate,
		Amount:    amount,
		Value:     rounded,
		Display:   ratecalc.FormatPlaces(rounded, places),
		Source:    snapshot.Source,
		Offline:   snapshot.Offline,
		FetchedAt: snapshot.FetchedAt,
	}, nil
}

// fiatPlaces keeps sub-unit fiat prices (one satoshi is a fraction of a
// cent) from rounding to zero.
func fiatPlaces(value float64) int {
	if value >= 1 || value <= -1 {
		return fiatLargePlaces
	}
	return fiatSmallPlaces
}

func (s *RateService) Convert(request model.ConversionRequest) (*model.ConversionResult, error) {
	from, err := ratecalc.ParseUnit(request.FromUnit)
	if err != nil {
		return nil, err
	}
	to, err := ratecalc.ParseUnit(request.ToUnit)
	if err != nil {
		return nil, err
	}
	if request.Amount < 0 {
		return nil, ErrInvalidAmount
	}

	converted, err := ratecalc.ConvertUnits(request.Amount, from, to)
	if err != nil {
		return nil, err
	}
	rounded, err := ratecalc.ApplyPrecision(converted, to)
	if err != nil {
		return nil, err
	}
	display, err := ratecalc.FormatValue(converted, to)
	if err != nil {
		return nil, err
	}

	return &model.ConversionResult{
		FromUnit: from,
		ToUnit:   to,
		Amount:   request.Amount,
		Result:   rounded,
		Display:  display,
	}, nil
}

func (s *RateService) Change(ctx context.Context, currency model.Currency) (*model.RateChange, error) {
	if !currency.IsSupported() {
		return nil, ErrInvalidCurrency
	}

	points := s.loadHistory(ctx).PointsFor(currency)
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: %s has %d data points", ErrNoHistory, currency, len(points))
	}
	previous, current := points[len(points)-2], points[len(points)-1]

	change, err := ratecalc.PercentageChange(previous.Rates[currency], current.Rates[currency])
	if err != nil {
		return nil, err
	}
	change, err = ratecalc.ApplyPrecisionCustom(change, ratecalc.BTC, percentagePlaces)
	if err != nil {
		return nil, err
	}

	return &model.RateChange{
		Currency:      currency,
		Previous:      previous.Rates[currency],
		Current:       current.Rates[currency],
		PercentChange: change,
		Since:         previous.Timestamp,
	}, nil
}

func (s *RateService) Volatility(ctx context.Context, currency model.Currency) (*model.VolatilityReport, error) {
	if !currency.IsSupported() {
		return nil, ErrInvalidCurrency
	}

	series := s.loadHistory(ctx).Series(currency)
	volatility, err := ratecalc.Volatility(series)
	if err != nil {
		return nil, err
	}
	volatility, err = ratecalc.ApplyPrecisionCustom(volatility, ratecalc.BTC, volatilityPlaces)
	if err != nil {
		return nil, err
	}

	return &model.VolatilityReport{
		Currency:   currency,
		Samples:    len(series),
		Volatility: volatility,
	}, nil
}

func (s *RateService) CacheStats(ctx context.Context) model.CacheStats {
	return s.cache.Stats(ctx)
}

func (s *RateService) CleanupCache(ctx context.Context) int {
	return s.cache.Cleanup(ctx)
}

func (s *RateService) ClearCache(ctx context.Context) bool {
	s.log.Info("Clearing rate cache")
	return s.cache.Clear(ctx)
}

func (s *RateService) loadHistory(ctx context.Context) model.RateHistory {
	var history model.RateHistory

	data, found := s.cache.Get(ctx, HistoryCacheKey)
	if !found {
		return history
	}
	if err := json.Unmarshal(data, &history); err != nil {
		s.log.Warn("Discarding undecodable rate history", "error", err)
		return model.RateHistory{}
	}
	return history
}

func (s *RateService) recordHistory(ctx context.Context, snapshot *model.RateSnapshot) {
	history := s.loadHistory(ctx)

	if n := len(history.Points); n > 0 && !snapshot.FetchedAt.After(history.Points[n-1].Timestamp) {
		return
	}

	rates := make(map[model.Currency]float64, len(snapshot.Rates))
	for c, r := range snapshot.Rates {
		rates[c] = r
	}
	history.Points = append(history.Points, model.HistoryPoint{
		Timestamp: snapshot.FetchedAt,
		Rates:     rates,
	})
	if len(history.Points) > MaxHistoryPoints {
		history.Points = history.Points[len(history.Points)-MaxHistoryPoints:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		s.log.Error("Failed to encode rate history", "error", err)
		return
	}
	s.cache.Set(ctx, HistoryCacheKey, data, HistoryTTL)
}
