package quote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput marks a request whose shape is wrong, nothing is fetched.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSymbolLookupFailed is wrapped into Result.Err, it never fails a batch.
	ErrSymbolLookupFailed = errors.New("symbol lookup failed")
	// ErrAggregationFailed is returned when a fan-out cannot be started at all.
	ErrAggregationFailed = errors.New("aggregation failed")
)

// Quote is a point-in-time market record for one symbol. Only the fields the
// dashboard and report rely on are typed, anything else the provider returns
// lives in Extra.
type Quote struct {
	Symbol        string
	Name          string
	Currency      string
	Price         decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Time          time.Time
	Source        string
	Extra         map[string]interface{}
}

// MarshalJSON flattens Extra next to the typed fields, using the field names
// Yahoo Finance clients are used to.
func (q *Quote) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(q.Extra)+8)
	for k, v := range q.Extra {
		out[k] = v
	}
	out["symbol"] = q.Symbol
	if q.Name != "" {
		out["shortName"] = q.Name
	}
	if q.Currency != "" {
		out["currency"] = q.Currency
	}
	if q.Source != "" {
		out["source"] = q.Source
	}
	out["regularMarketPrice"] = json.Number(q.Price.String())
	out["regularMarketChange"] = json.Number(q.Change.String())
	out["regularMarketChangePercent"] = json.Number(q.ChangePercent.String())
	if !q.Time.IsZero() {
		out["regularMarketTime"] = q.Time.Unix()
	}
	return json.Marshal(out)
}

// Client looks up one symbol at a time.
type Client interface {
	GetName() string
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// Result is the outcome of one lookup in a batch. Exactly one of Quote and
// Err is set.
type Result struct {
	Symbol string
	Quote  *Quote
	Err    error
}

// Failed reports whether this result is the sentinel for a failed lookup.
func (r Result) Failed() bool {
	return r.Err != nil || r.Quote == nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Symbol string `json:"symbol"`
			Error  bool   `json:"error"`
		}{r.Symbol, true})
	}
	return r.Quote.MarshalJSON()
}

// Quotes returns the successful quotes of results, in order.
func Quotes(results []Result) []*Quote {
	quotes := make([]*Quote, 0, len(results))
	for _, r := range results {
		if !r.Failed() {
			quotes = append(quotes, r.Quote)
		}
	}
	return quotes
}
