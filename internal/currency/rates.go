// Package currency converts amounts using live exchange rates.
package currency

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Rates holds exchange rates relative to Base.
type Rates struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	Provider  string             `json:"provider"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Conversion is the result of Convert. When no rate is known the original
// amount is returned unchanged with rate 1.
type Conversion struct {
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	OriginalAmount   float64 `json:"original_amount"`
	OriginalCurrency string  `json:"original_currency"`
	Rate             float64 `json:"rate"`
}

// ProviderFallback names rates served from the built-in table.
const ProviderFallback = "fallback"

// Approximate USD rates used when every provider fails.
var fallbackUSD = map[string]float64{
	"USD": 1,
	"EUR": 0.92,
	"GBP": 0.79,
	"INR": 83.12,
	"JPY": 149.50,
	"CNY": 7.24,
	"AUD": 1.52,
	"CAD": 1.36,
	"SGD": 1.34,
	"AED": 3.67,
}

// FallbackRates derives rates for base from the built-in USD table. It
// returns nil when base is not in the table.
func FallbackRates(base string, now time.Time) *Rates {
	base = normalizeCode(base)
	baseRate, ok := fallbackUSD[base]
	if !ok {
		return nil
	}

	rates := make(map[string]float64, len(fallbackUSD))
	for code, rate := range fallbackUSD {
		rates[code] = rate / baseRate
	}
	return &Rates{Base: base, Rates: rates, Provider: ProviderFallback, FetchedAt: now}
}

// Currency describes a commonly offered currency.
type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Popular lists the currencies offered in the questionnaire.
var Popular = []Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$"},
	{Code: "EUR", Name: "Euro", Symbol: "€"},
	{Code: "GBP", Name: "British Pound", Symbol: "£"},
	{Code: "INR", Name: "Indian Rupee", Symbol: "₹"},
	{Code: "JPY", Name: "Japanese Yen", Symbol: "¥"},
	{Code: "CNY", Name: "Chinese Yuan", Symbol: "¥"},
	{Code: "AUD", Name: "Australian Dollar", Symbol: "A$"},
	{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$"},
	{Code: "SGD", Name: "Singapore Dollar", Symbol: "S$"},
	{Code: "AED", Name: "UAE Dirham", Symbol: "د.إ"},
}

var symbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "INR": "₹", "JPY": "¥", "CNY": "¥",
	"AUD": "A$", "CAD": "C$", "CHF": "Fr", "SGD": "S$", "AED": "د.إ", "SAR": "﷼",
	"ZAR": "R", "BRL": "R$", "MXN": "Mex$", "RUB": "₽", "KRW": "₩", "IDR": "Rp",
	"MYR": "RM", "THB": "฿", "PHP": "₱", "VND": "₫", "PKR": "₨", "BDT": "৳",
	"LKR": "රු", "NGN": "₦", "EGP": "E£", "KES": "KSh",
}

var zeroDecimal = map[string]bool{"JPY": true, "KRW": true, "VND": true, "IDR": true}

var printer = message.NewPrinter(language.AmericanEnglish)

// Format renders amount with the currency symbol and the usual number of
// decimals, for example "$1,234.50" or "¥1,235".
func Format(amount float64, code string) string {
	code = normalizeCode(code)
	symbol, ok := symbols[code]
	if !ok {
		symbol = code
	}
	if zeroDecimal[code] {
		return symbol + printer.Sprintf("%d", int64(math.Round(amount)))
	}
	return symbol + printer.Sprintf("%.2f", amount)
}

// Matched in order; earlier entries win.
var locationCurrencies = []struct {
	place string
	code  string
}{
	{"india", "INR"},
	{"usa", "USD"},
	{"united states", "USD"},
	{"us", "USD"},
	{"uk", "GBP"},
	{"united kingdom", "GBP"},
	{"england", "GBP"},
	{"europe", "EUR"},
	{"germany", "EUR"},
	{"france", "EUR"},
	{"spain", "EUR"},
	{"italy", "EUR"},
	{"japan", "JPY"},
	{"china", "CNY"},
	{"australia", "AUD"},
	{"canada", "CAD"},
	{"singapore", "SGD"},
	{"uae", "AED"},
	{"dubai", "AED"},
	{"saudi", "SAR"},
	{"south africa", "ZAR"},
	{"brazil", "BRL"},
	{"mexico", "MXN"},
	{"russia", "RUB"},
	{"korea", "KRW"},
	{"indonesia", "IDR"},
	{"malaysia", "MYR"},
	{"thailand", "THB"},
	{"philippines", "PHP"},
	{"vietnam", "VND"},
	{"pakistan", "PKR"},
	{"bangladesh", "BDT"},
	{"sri lanka", "LKR"},
	{"nigeria", "NGN"},
	{"egypt", "EGP"},
	{"kenya", "KES"},
}

// ByLocation guesses the currency for a free-form location, defaulting to
// USD. Short names such as "us" and "uk" only match whole words.
func ByLocation(location string) string {
	lower := strings.ToLower(location)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})

	for _, entry := range locationCurrencies {
		if len(entry.place) <= 3 {
			for _, w := range words {
				if w == entry.place {
					return entry.code
				}
			}
			continue
		}
		if strings.Contains(lower, entry.place) {
			return entry.code
		}
	}
	return "USD"
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
