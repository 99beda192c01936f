package catalog

import (
	"errors"
	"testing"
)

func TestLookupCaseInsensitive(t *testing.T) {
	for _, ticker := range []string{"MEME", "meme", " Meme "} {
		spec, err := Lookup(ticker)
		if err != nil {
			t.Fatalf("Lookup(%q) = %v", ticker, err)
		}
		if spec.Ticker != "MEME" {
			t.Errorf("Lookup(%q).Ticker = %s, want MEME", ticker, spec.Ticker)
		}
	}
}

func TestLookupUnknownTicker(t *testing.T) {
	_, err := Lookup("NOPE")
	if !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("err = %v, want ErrUnknownTicker", err)
	}
}

func TestTickersMatchCatalogOrder(t *testing.T) {
	tickers := Tickers()
	if len(tickers) != len(Coins) {
		t.Fatalf("len = %d, want %d", len(tickers), len(Coins))
	}
	for i, c := range Coins {
		if tickers[i] != c.Ticker {
			t.Errorf("tickers[%d] = %s, want %s", i, tickers[i], c.Ticker)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  doge2 "); got != "DOGE2" {
		t.Errorf("Normalize = %q, want DOGE2", got)
	}
}
