package models

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

// currencyCountries: страны, чьи события двигают валюту.
var currencyCountries = map[string][]string{
	"USD": {"US"},
	"EUR": {"EU", "DE", "FR", "IT", "ES"},
	"GBP": {"GB"},
	"JPY": {"JP"},
	"CHF": {"CH"},
	"CAD": {"CA"},
	"AUD": {"AU"},
	"NZD": {"NZ"},
	"CNY": {"CN"},
	"CNH": {"CN"},
	"XAU": {"US"},
	"XAG": {"US"},
}

// CountriesOfInterest maps a symbol like "EURUSD" or "XAUUSD" to the calendar country
// codes whose events move it. Order follows the symbol, duplicates are dropped.
func CountriesOfInterest(symbol string) ([]string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	// брокерские суффиксы: EURUSD.m, EURUSDm, EURUSD-ECN
	if i := strings.IndexAny(s, ".-_"); i > 0 {
		s = s[:i]
	}
	if len(s) < 6 {
		return nil, errors.Wrapf(ErrUnknownSymbol, "symbol %q", symbol)
	}

	seen := make(map[string]bool)
	var out []string
	for _, ccy := range []string{s[:3], s[3:6]} {
		countries, ok := currencyCountries[ccy]
		if !ok {
			continue
		}
		for _, c := range countries {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrUnknownSymbol, "symbol %q", symbol)
	}
	return out, nil
}
