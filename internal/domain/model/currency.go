package model

import "strings"

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	CHF Currency = "CHF"
	CNY Currency = "CNY"
	INR Currency = "INR"
	BRL Currency = "BRL"
	RUB Currency = "RUB"
	KRW Currency = "KRW"
	MXN Currency = "MXN"
	SGD Currency = "SGD"
	HKD Currency = "HKD"
	NZD Currency = "NZD"
	SEK Currency = "SEK"
	NOK Currency = "NOK"
	ZAR Currency = "ZAR"
	TRY Currency = "TRY"
)

var SupportedCurrencies = []Currency{
	USD, EUR, GBP, JPY, CAD, AUD, CHF, CNY, INR, BRL,
	RUB, KRW, MXN, SGD, HKD, NZD, SEK, NOK, ZAR, TRY,
}

// ParseCurrency upper-cases s; it does not check support.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Currency) IsSupported() bool {
	for _, supportedCurrency := range SupportedCurrencies {
		if c == supportedCurrency {
			return true
		}
	}
	return false
}

func (c Currency) String() string {
	return string(c)
}
