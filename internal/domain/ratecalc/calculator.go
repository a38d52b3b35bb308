// Package ratecalc converts a BTC-denominated fiat rate into other Bitcoin
// denominations and derives display precision, percentage change and
// volatility. Every function is pure.
package ratecalc

import (
	"errors"
	"fmt"
	"math"

	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedUnit = errors.New("unsupported unit")
	ErrDivisionByZero  = errors.New("division by zero")
)

// Sanity bounds for a BTC price in any fiat currency, both exclusive.
const (
	MinPlausibleRate = 100
	MaxPlausibleRate = 10_000_000
)

const defaultPlaces = 2

var half = decimal.New(5, -1)

func ConvertToBits(btcRate float64) (float64, error) {
	if err := checkRate(btcRate); err != nil {
		return 0, err
	}
	return btcRate / BitsPerBTC, nil
}

func ConvertToSatoshi(btcRate float64) (float64, error) {
	if err := checkRate(btcRate); err != nil {
		return 0, err
	}
	return btcRate / SatoshiPerBTC, nil
}

// FiatPerUnit returns the fiat price of exactly one unit.
func FiatPerUnit(btcRate float64, unit Unit) (float64, error) {
	if err := checkRate(btcRate); err != nil {
		return 0, err
	}

	switch unit {
	case BTC:
		return btcRate, nil
	case Bits:
		return ConvertToBits(btcRate)
	case Satoshi:
		return ConvertToSatoshi(btcRate)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedUnit, unit)
}

// UnitsPerFiat returns how many units fiatAmount buys.
func UnitsPerFiat(btcRate, fiatAmount float64, unit Unit) (float64, error) {
	if !isFinite(fiatAmount) || fiatAmount <= 0 {
		return 0, fmt.Errorf("%w: fiat amount must be a positive number, got %v", ErrInvalidInput, fiatAmount)
	}

	perUnit, err := FiatPerUnit(btcRate, unit)
	if err != nil {
		return 0, err
	}
	return fiatAmount / perUnit, nil
}

// Places returns the number of decimal places used to display value in unit.
func Places(value float64, unit Unit) int {
	large := math.Abs(value) >= 1
	switch unit {
	case BTC:
		if large {
			return 4
		}
		return 8
	case Bits:
		if large {
			return 2
		}
		return 6
	case Satoshi:
		return 0
	}
	return defaultPlaces
}

// ApplyPrecision rounds value half-up to the places its unit calls for.
// Unknown units round to two places.
func ApplyPrecision(value float64, unit Unit) (float64, error) {
	if !isFinite(value) {
		return 0, fmt.Errorf("%w: value must be a finite number, got %v", ErrInvalidInput, value)
	}
	return roundHalfUp(value, Places(value, unit)), nil
}

// ApplyPrecisionCustom rounds value to places regardless of unit.
func ApplyPrecisionCustom(value float64, unit Unit, places int) (float64, error) {
	if !isFinite(value) {
		return 0, fmt.Errorf("%w: value must be a finite number, got %v", ErrInvalidInput, value)
	}
	if places < 0 {
		return 0, fmt.Errorf("%w: precision must be non-negative, got %d", ErrInvalidInput, places)
	}
	return roundHalfUp(value, places), nil
}

// PercentageChange returns (newRate-oldRate)/oldRate*100.
func PercentageChange(oldRate, newRate float64) (float64, error) {
	if !isFinite(oldRate) || !isFinite(newRate) {
		return 0, fmt.Errorf("%w: rates must be finite numbers, got %v and %v", ErrInvalidInput, oldRate, newRate)
	}
	if oldRate == 0 {
		return 0, fmt.Errorf("%w: baseline rate is zero", ErrDivisionByZero)
	}
	return (newRate - oldRate) / oldRate * 100, nil
}

// ValidateBitcoinRate reports whether btcRate lies strictly inside the
// plausible range. It never fails.
func ValidateBitcoinRate(btcRate float64) bool {
	return isFinite(btcRate) && btcRate > MinPlausibleRate && btcRate < MaxPlausibleRate
}

// ConvertUnits converts amount between denominations through their satoshi
// value. Equal units return amount untouched.
func ConvertUnits(amount float64, from, to Unit) (float64, error) {
	if !isFinite(amount) || amount < 0 {
		return 0, fmt.Errorf("%w: amount must be a non-negative number, got %v", ErrInvalidInput, amount)
	}

	fromSats, err := from.satoshis()
	if err != nil {
		return 0, err
	}
	toSats, err := to.satoshis()
	if err != nil {
		return 0, err
	}

	if from == to {
		return amount, nil
	}
	return amount * fromSats / toSats, nil
}

// ConvertUnitNames is ConvertUnits for unit names arriving from user input.
func ConvertUnitNames(amount float64, from, to string) (float64, error) {
	fromUnit, err := ParseUnit(from)
	if err != nil {
		return 0, err
	}
	toUnit, err := ParseUnit(to)
	if err != nil {
		return 0, err
	}
	return ConvertUnits(amount, fromUnit, toUnit)
}

// Volatility is the population standard deviation of the successive
// percentage changes in rates. Fewer than two samples give zero.
func Volatility(rates []float64) (float64, error) {
	for _, r := range rates {
		if err := checkRate(r); err != nil {
			return 0, err
		}
	}
	if len(rates) < 2 {
		return 0, nil
	}

	changes := make([]float64, 0, len(rates)-1)
	for i := 1; i < len(rates); i++ {
		change, err := PercentageChange(rates[i-1], rates[i])
		if err != nil {
			return 0, err
		}
		changes = append(changes, change)
	}

	var sum float64
	for _, c := range changes {
		sum += c
	}
	mean := sum / float64(len(changes))

	var variance float64
	for _, c := range changes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(changes))

	return math.Sqrt(variance), nil
}

// FormatValue rounds value for unit and renders it with thousands separators.
func FormatValue(value float64, unit Unit) (string, error) {
	rounded, err := ApplyPrecision(value, unit)
	if err != nil {
		return "", err
	}
	return FormatPlaces(rounded, Places(value, unit)), nil
}

// FormatPlaces renders value with a fixed number of decimal places.
func FormatPlaces(value float64, places int) string {
	ac := accounting.Accounting{Symbol: "", Precision: places}
	return ac.FormatMoneyFloat64(value)
}

func roundHalfUp(value float64, places int) float64 {
	shift := int32(places)
	d := decimal.NewFromFloat(value).Shift(shift).Add(half).Floor().Shift(-shift)
	// The nearest float64 is the intended result.
	return d.InexactFloat64()
}

func checkRate(rate float64) error {
	if !isFinite(rate) || rate <= 0 {
		return fmt.Errorf("%w: rate must be a positive number, got %v", ErrInvalidInput, rate)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
