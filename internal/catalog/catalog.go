// Package catalog defines the fixed set of tradeable coins and validates
// ticker symbols against it. The market never creates coins outside this
// table; a full reset re-seeds exactly these tickers.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTicker is returned for tickers not present in the catalog.
var ErrUnknownTicker = errors.New("catalog: unknown ticker")

// CoinSpec is one catalog row.
type CoinSpec struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Coins is the fixed coin table, in listing order.
var Coins = []CoinSpec{
	{Ticker: "DOGE2", Name: "DogeCoin 2.0", Description: "Much wow, very profit"},
	{Ticker: "MEME", Name: "MemeToken", Description: "To the moon!"},
	{Ticker: "BOOM", Name: "BoomerCoin", Description: "Back in my day..."},
	{Ticker: "YOLO", Name: "YoloCoin", Description: "You Only Live Once"},
	{Ticker: "HODL", Name: "HodlToken", Description: "Diamond hands forever"},
	{Ticker: "REKT", Name: "RektCoin", Description: "Get rekt or get rich"},
	{Ticker: "PUMP", Name: "PumpToken", Description: "Number go up"},
	{Ticker: "DUMP", Name: "DumpCoin", Description: "Gravity is real"},
	{Ticker: "MOON", Name: "MoonRocket", Description: "Destination: Moon"},
	{Ticker: "CHAD", Name: "ChadCoin", Description: "Alpha energy only"},
}

var byTicker = func() map[string]CoinSpec {
	m := make(map[string]CoinSpec, len(Coins))
	for _, c := range Coins {
		m[c.Ticker] = c
	}
	return m
}()

// Tickers returns all catalog tickers in listing order.
func Tickers() []string {
	out := make([]string, len(Coins))
	for i, c := range Coins {
		out[i] = c.Ticker
	}
	return out
}

// Lookup resolves a ticker (case-insensitive) to its catalog entry.
func Lookup(ticker string) (CoinSpec, error) {
	spec, ok := byTicker[Normalize(ticker)]
	if !ok {
		return CoinSpec{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return spec, nil
}

// Normalize uppercases and trims a user-supplied ticker.
func Normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
