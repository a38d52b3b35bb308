package repository

import (
	"time"

	"bitcoin-rates-service/internal/domain/model"
)

const SampleSource = "sample"

// sampleRates are indicative prices used when nothing else is available.
var sampleRates = map[model.Currency]float64{
	model.USD: 50000,
	model.EUR: 46000,
	model.GBP: 39500,
	model.JPY: 7450000,
	model.CAD: 68000,
	model.AUD: 76000,
	model.CHF: 44500,
	model.CNY: 362000,
	model.INR: 4170000,
	model.BRL: 275000,
	model.RUB: 4600000,
	model.KRW: 6700000,
	model.MXN: 860000,
	model.SGD: 67500,
	model.HKD: 391000,
	model.NZD: 82500,
	model.SEK: 530000,
	model.NOK: 540000,
	model.ZAR: 930000,
	model.TRY: 1610000,
}

// SampleSnapshot returns the built-in rates flagged as offline data.
func SampleSnapshot(now time.Time) *model.RateSnapshot {
	rates := make(map[model.Currency]float64, len(sampleRates))
	for c, r := range sampleRates {
		rates[c] = r
	}
	return &model.RateSnapshot{
		Rates:     rates,
		Source:    SampleSource,
		FetchedAt: now.UTC(),
		Offline:   true,
	}
}
