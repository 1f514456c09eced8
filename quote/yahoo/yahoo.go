package yahoo

import (
	"context"
	"time"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/http"
	"github.com/fixerstudio/marketbrief/quote"
)

// ErrNotFound is returned when the provider has no data for a symbol.
var ErrNotFound = errors.New("symbol not found")

// daily bars looked back on, wide enough to span a long weekend
const lookback = 7 * 24 * time.Hour

// quoteClient reads daily bars from the Yahoo Finance chart API via finance-go.
type quoteClient struct {
	chart func(*chart.Params) *chart.Iter
	now   func() time.Time
}

func NewQuoteClient(httpClient *http.Client) *quoteClient {
	if httpClient != nil {
		finance.SetHTTPClient(httpClient.StdClient)
	}
	return &quoteClient{chart: chart.Get, now: time.Now}
}

func (client *quoteClient) GetName() string {
	return "Yahoo"
}

func (client *quoteClient) GetQuote(ctx context.Context, symbol string) (*quote.Quote, error) {
	end := client.now()
	start := end.Add(-lookback)
	it := client.chart(&chart.Params{
		Params:   finance.Params{Context: &ctx},
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	// bars with no trades come back with a zero close
	var last, prev *finance.ChartBar
	for it.Next() {
		if bar := it.Bar(); bar != nil && !bar.Close.IsZero() {
			prev, last = last, bar
		}
	}
	if err := it.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(err, "%s - get %s", client.GetName(), symbol)
	}
	if last == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s - %s", client.GetName(), symbol)
	}
	meta, _ := it.Iter.Meta().(finance.ChartMeta)
	return client.toQuote(symbol, meta, last, prev), nil
}

func (client *quoteClient) toQuote(symbol string, meta finance.ChartMeta, last, prev *finance.ChartBar) *quote.Quote {
	q := &quote.Quote{
		Symbol:   symbol,
		Currency: meta.Currency,
		Price:    last.Close,
		Time:     time.Unix(int64(last.Timestamp), 0),
		Source:   client.GetName(),
		Extra: map[string]interface{}{
			"exchangeName":         meta.ExchangeName,
			"quoteType":            string(meta.QuoteType),
			"exchangeTimezoneName": meta.ExchangeTimezoneName,
			"regularMarketOpen":    last.Open.InexactFloat64(),
			"regularMarketDayHigh": last.High.InexactFloat64(),
			"regularMarketDayLow":  last.Low.InexactFloat64(),
			"regularMarketVolume":  last.Volume,
		},
	}
	if last.Timestamp == 0 {
		q.Time = client.now()
	}

	previous := decimal.NewFromFloat(meta.ChartPreviousClose)
	if prev != nil {
		previous = prev.Close
	}
	if !previous.IsZero() {
		q.Change = last.Close.Sub(previous)
		q.ChangePercent = q.Change.Div(previous).Mul(hundred).Round(4)
		q.Extra["regularMarketPreviousClose"] = previous.InexactFloat64()
	}
	return q
}

func init() {
	quote.Register(func(cfg *config.Config, httpClient *http.Client) quote.Client {
		return NewQuoteClient(httpClient)
	})
}
