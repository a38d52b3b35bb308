package model

import (
	"time"

	"bitcoin-rates-service/internal/domain/ratecalc"
)

// Direction selects which way a quote is expressed.
type Direction string

const (
	// FiatPerUnit prices an amount of a Bitcoin unit in fiat.
	FiatPerUnit Direction = "fiat-per-unit"
	// UnitsPerFiat counts how many units a fiat amount buys.
	UnitsPerFiat Direction = "unit-per-fiat"
)

func (d Direction) Valid() bool {
	return d == FiatPerUnit || d == UnitsPerFiat
}

// RateSnapshot holds the price of 1 BTC in each fiat currency at one moment.
type RateSnapshot struct {
	Rates     map[Currency]float64 `json:"rates"`
	Source    string               `json:"source"`
	FetchedAt time.Time            `json:"fetched_at"`
	Offline   bool                 `json:"offline,omitempty"`
}

type HistoryPoint struct {
	Timestamp time.Time            `json:"timestamp"`
	Rates     map[Currency]float64 `json:"rates"`
}

type RateHistory struct {
	Points []HistoryPoint `json:"points"`
}

// Series returns the recorded rates for c, oldest first.
func (h RateHistory) Series(c Currency) []float64 {
	series := make([]float64, 0, len(h.Points))
	for _, p := range h.Points {
		if rate, ok := p.Rates[c]; ok {
			series = append(series, rate)
		}
	}
	return series
}

// PointsFor returns the points that carry a rate for c, oldest first.
func (h RateHistory) PointsFor(c Currency) []HistoryPoint {
	points := make([]HistoryPoint, 0, len(h.Points))
	for _, p := range h.Points {
		if _, ok := p.Rates[c]; ok {
			points = append(points, p)
		}
	}
	return points
}

type QuoteRequest struct {
	Currency  Currency
	Unit      ratecalc.Unit
	Direction Direction
	Amount    float64
}

type Quote struct {
	Currency  Currency      `json:"currency"`
	Unit      ratecalc.Unit `json:"unit"`
	Direction Direction     `json:"direction"`
	BTCRate   float64       `json:"btc_rate"`
	Amount    float64       `json:"amount"`
	Value     float64       `json:"value"`
	Display   string        `json:"display"`
	Source    string        `json:"source"`
	Offline   bool          `json:"offline,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
}

type ConversionRequest struct {
	FromUnit string  `json:"from_unit"`
	ToUnit   string  `json:"to_unit"`
	Amount   float64 `json:"amount"`
}

type ConversionResult struct {
	FromUnit ratecalc.Unit `json:"from_unit"`
	ToUnit   ratecalc.Unit `json:"to_unit"`
	Amount   float64       `json:"amount"`
	Result   float64       `json:"result"`
	Display  string        `json:"display"`
}

type RateChange struct {
	Currency      Currency  `json:"currency"`
	Previous      float64   `json:"previous"`
	Current       float64   `json:"current"`
	PercentChange float64   `json:"percent_change"`
	Since         time.Time `json:"since"`
}

type VolatilityReport struct {
	Currency   Currency `json:"currency"`
	Samples    int      `json:"samples"`
	Volatility float64  `json:"volatility"`
}

// CacheStats is a read-only view of the rate cache.
type CacheStats struct {
	MemoryEntries  int       `json:"memory_entries"`
	StorageEntries int       `json:"storage_entries"`
	EstimatedSize  int64     `json:"estimated_size"`
	LastCleanup    time.Time `json:"last_cleanup"`
}
