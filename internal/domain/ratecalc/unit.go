package ratecalc

import (
	"fmt"
	"strings"
)

// Unit is a Bitcoin denomination.
type Unit int

const (
	BTC Unit = iota + 1
	Bits
	Satoshi
)

const (
	BitsPerBTC    = 1_000_000
	SatoshiPerBTC = 100_000_000
	SatoshiPerBit = 100
)

// Units lists every supported denomination in display order.
var Units = []Unit{BTC, Bits, Satoshi}

// ParseUnit accepts btc, bits, satoshi and sats in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "btc":
		return BTC, nil
	case "bits":
		return Bits, nil
	case "satoshi", "sats":
		return Satoshi, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedUnit, s)
}

func (u Unit) Valid() bool {
	return u == BTC || u == Bits || u == Satoshi
}

func (u Unit) String() string {
	switch u {
	case BTC:
		return "BTC"
	case Bits:
		return "BITS"
	case Satoshi:
		return "SATOSHI"
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

func (u Unit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedUnit, int(u))
	}
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// satoshis is the number of satoshi in one u.
func (u Unit) satoshis() (float64, error) {
	switch u {
	case BTC:
		return SatoshiPerBTC, nil
	case Bits:
		return SatoshiPerBit, nil
	case Satoshi:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedUnit, u)
}
