package ratecalc

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func TestConversionRatios(t *testing.T) {
	bits, err := ConvertToBits(1_000_000)
	if err != nil || bits != 1 {
		t.Errorf("Expected ConvertToBits(1e6) = 1, got %v (err %v)", bits, err)
	}

	sats, err := ConvertToSatoshi(100_000_000)
	if err != nil || sats != 1 {
		t.Errorf("Expected ConvertToSatoshi(1e8) = 1, got %v (err %v)", sats, err)
	}

	got, err := ConvertUnits(1, Bits, Satoshi)
	if err != nil || got != 100 {
		t.Errorf("Expected 1 bit = 100 satoshi, got %v (err %v)", got, err)
	}

	got, err = ConvertUnits(1, BTC, Bits)
	if err != nil || got != 1_000_000 {
		t.Errorf("Expected 1 BTC = 1,000,000 bits, got %v (err %v)", got, err)
	}
}

func TestConvertToBits_InvalidInput(t *testing.T) {
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := ConvertToBits(rate); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ConvertToBits(%v): expected ErrInvalidInput, got %v", rate, err)
		}
		if _, err := ConvertToSatoshi(rate); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ConvertToSatoshi(%v): expected ErrInvalidInput, got %v", rate, err)
		}
	}
}

func TestFiatPerUnit(t *testing.T) {
	testCases := []struct {
		name          string
		rate          float64
		unit          Unit
		expected      float64
		expectedError error
	}{
		{name: "BTC", rate: 50000, unit: BTC, expected: 50000},
		{name: "Bits", rate: 50000, unit: Bits, expected: 0.05},
		{name: "Satoshi", rate: 50000, unit: Satoshi, expected: 0.0005},
		{name: "Unknown unit", rate: 50000, unit: Unit(42), expectedError: ErrUnsupportedUnit},
		{name: "Zero rate", rate: 0, unit: BTC, expectedError: ErrInvalidInput},
		{name: "NaN rate", rate: math.NaN(), unit: Bits, expectedError: ErrInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FiatPerUnit(tc.rate, tc.unit)
			if tc.expectedError != nil {
				if !errors.Is(err, tc.expectedError) {
					t.Fatalf("Expected error %v, got %v", tc.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !almostEqual(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestUnitsPerFiat(t *testing.T) {
	got, err := UnitsPerFiat(50000, 1000, Bits)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != 20000 {
		t.Errorf("Expected 20000 bits, got %v", got)
	}

	got, err = UnitsPerFiat(50000, 1000, BTC)
	if err != nil || !almostEqual(got, 0.02) {
		t.Errorf("Expected 0.02 BTC, got %v (err %v)", got, err)
	}

	for _, amount := range []float64{0, -5, math.NaN()} {
		if _, err := UnitsPerFiat(50000, amount, BTC); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("amount %v: expected ErrInvalidInput, got %v", amount, err)
		}
	}

	if _, err := UnitsPerFiat(-1, 10, BTC); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected rate error to propagate, got %v", err)
	}
	if _, err := UnitsPerFiat(50000, 10, Unit(0)); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Expected ErrUnsupportedUnit, got %v", err)
	}
}

func TestUnitsPerFiat_Monotonic(t *testing.T) {
	rates := []float64{150, 1000, 25000, 50000, 123456.78, 9_000_000}
	amounts := []float64{0.01, 1, 10, 250, 1000, 1e6}

	for _, unit := range Units {
		for _, rate := range rates {
			prev := -1.0
			for _, amount := range amounts {
				got, err := UnitsPerFiat(rate, amount, unit)
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if got <= prev {
					t.Errorf("%s: not increasing in amount at rate %v amount %v", unit, rate, amount)
				}
				prev = got
			}
		}

		for _, amount := range amounts {
			prev := math.Inf(1)
			for _, rate := range rates {
				got, err := UnitsPerFiat(rate, amount, unit)
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if got >= prev {
					t.Errorf("%s: not decreasing in rate at amount %v rate %v", unit, amount, rate)
				}
				prev = got
			}
		}
	}
}

func TestApplyPrecision(t *testing.T) {
	testCases := []struct {
		name     string
		value    float64
		unit     Unit
		expected float64
	}{
		{name: "BTC below one keeps eight places", value: 0.999999, unit: BTC, expected: 0.999999},
		{name: "BTC below one rounds ninth place", value: 0.123456789, unit: BTC, expected: 0.12345679},
		{name: "BTC at or above one uses four places", value: 1.000001, unit: BTC, expected: 1.0},
		{name: "BTC large value", value: 1.23456, unit: BTC, expected: 1.2346},
		{name: "Bits above one", value: 20000.456, unit: Bits, expected: 20000.46},
		{name: "Bits below one", value: 0.1234567, unit: Bits, expected: 0.123457},
		{name: "Satoshi rounds half up", value: 2.5, unit: Satoshi, expected: 3},
		{name: "Satoshi rounds down", value: 2.49, unit: Satoshi, expected: 2},
		{name: "Satoshi negative half goes up", value: -2.5, unit: Satoshi, expected: -2},
		{name: "Unknown unit uses two places", value: 3.14159, unit: Unit(9), expected: 3.14},
		{name: "Decimal half rounds as written", value: 1.005, unit: Unit(9), expected: 1.01},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyPrecision(tc.value, tc.unit)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}

	if _, err := ApplyPrecision(math.Inf(-1), BTC); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for infinity, got %v", err)
	}
}

func TestApplyPrecisionCustom(t *testing.T) {
	for _, unit := range []Unit{BTC, Bits, Satoshi, Unit(0)} {
		got, err := ApplyPrecisionCustom(1234.56789, unit, 3)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != 1234.568 {
			t.Errorf("%s: expected 1234.568, got %v", unit, got)
		}
	}

	got, err := ApplyPrecisionCustom(0.5, Satoshi, 0)
	if err != nil || got != 1 {
		t.Errorf("Expected 1, got %v (err %v)", got, err)
	}

	if _, err := ApplyPrecisionCustom(1, BTC, -1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative precision, got %v", err)
	}
	if _, err := ApplyPrecisionCustom(math.NaN(), BTC, 2); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for NaN, got %v", err)
	}
}

func TestPercentageChange(t *testing.T) {
	got, err := PercentageChange(100, 110)
	if err != nil || got != 10 {
		t.Errorf("Expected 10, got %v (err %v)", got, err)
	}

	got, err = PercentageChange(100, 90)
	if err != nil || got != -10 {
		t.Errorf("Expected -10, got %v (err %v)", got, err)
	}

	if _, err := PercentageChange(0, 100); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("Expected ErrDivisionByZero, got %v", err)
	}
	if _, err := PercentageChange(math.NaN(), 100); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := PercentageChange(100, math.Inf(1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateBitcoinRate(t *testing.T) {
	testCases := []struct {
		rate     float64
		expected bool
	}{
		{100, false},
		{100.01, true},
		{50000, true},
		{9_999_999.99, true},
		{10_000_000, false},
		{0, false},
		{-50000, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}

	for _, tc := range testCases {
		if got := ValidateBitcoinRate(tc.rate); got != tc.expected {
			t.Errorf("ValidateBitcoinRate(%v): expected %v, got %v", tc.rate, tc.expected, got)
		}
	}
}

func TestConvertUnits_Identity(t *testing.T) {
	for _, unit := range Units {
		for _, n := range []float64{0, 0.1, 1.0000000001, 12345.6789, 1e15} {
			got, err := ConvertUnits(n, unit, unit)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != n {
				t.Errorf("%s identity: expected %v, got %v", unit, n, got)
			}
		}
	}
}

func TestConvertUnits_RoundTrip(t *testing.T) {
	values := []float64{0.00000001, 0.3, 1, 7.77, 1234.5678, 21_000_000}

	for _, from := range Units {
		for _, to := range Units {
			for _, x := range values {
				there, err := ConvertUnits(x, from, to)
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				back, err := ConvertUnits(there, to, from)
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if !almostEqual(back, x) {
					t.Errorf("%s->%s->%s: expected %v, got %v", from, to, from, x, back)
				}
			}
		}
	}
}

func TestConvertUnits_Errors(t *testing.T) {
	if _, err := ConvertUnits(-1, BTC, Bits); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := ConvertUnits(math.NaN(), BTC, Bits); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := ConvertUnits(1, Unit(7), Bits); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Expected ErrUnsupportedUnit, got %v", err)
	}
}

func TestConvertUnitNames(t *testing.T) {
	got, err := ConvertUnitNames(1, "BITS", "sats")
	if err != nil || got != 100 {
		t.Errorf("Expected 100, got %v (err %v)", got, err)
	}

	got, err = ConvertUnitNames(5, "Satoshi", "SATS")
	if err != nil || got != 5 {
		t.Errorf("Expected identity 5, got %v (err %v)", got, err)
	}

	if _, err := ConvertUnitNames(1, "mbtc", "btc"); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Expected ErrUnsupportedUnit, got %v", err)
	}
	if _, err := ConvertUnitNames(1, "btc", "eth"); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Expected ErrUnsupportedUnit, got %v", err)
	}
}

func TestVolatility(t *testing.T) {
	got, err := Volatility([]float64{50000})
	if err != nil || got != 0 {
		t.Errorf("Expected 0 for a single sample, got %v (err %v)", got, err)
	}

	got, err = Volatility([]float64{100, 110, 99})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// changes are +10% and -10%, mean 0
	if !almostEqual(got, 10) {
		t.Errorf("Expected 10, got %v", got)
	}

	got, err = Volatility([]float64{200, 200, 200})
	if err != nil || got != 0 {
		t.Errorf("Expected 0 for a flat series, got %v (err %v)", got, err)
	}

	if _, err := Volatility([]float64{100, 0}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestFormatValue(t *testing.T) {
	testCases := []struct {
		value    float64
		unit     Unit
		expected string
	}{
		{20000.456, Bits, "20,000.46"},
		{0.05, Bits, "0.050000"},
		{1234567.4, Satoshi, "1,234,567"},
		{0.02, BTC, "0.02000000"},
		{1.5, BTC, "1.5000"},
	}

	for _, tc := range testCases {
		got, err := FormatValue(tc.value, tc.unit)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != tc.expected {
			t.Errorf("FormatValue(%v, %s): expected %q, got %q", tc.value, tc.unit, tc.expected, got)
		}
	}
}

func TestEndToEndExample(t *testing.T) {
	perBit, err := FiatPerUnit(50000, Bits)
	if err != nil || perBit != 0.05 {
		t.Fatalf("Expected 0.05 USD per bit, got %v (err %v)", perBit, err)
	}

	bits, err := UnitsPerFiat(50000, 1000, Bits)
	if err != nil || bits != 20000 {
		t.Fatalf("Expected 20000 bits for 1000 USD, got %v (err %v)", bits, err)
	}

	rounded, err := ApplyPrecision(20000.456, Bits)
	if err != nil || rounded != 20000.46 {
		t.Fatalf("Expected 20000.46, got %v (err %v)", rounded, err)
	}
}
