package yahoo

import (
	"context"
	"net/url"
	"time"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/http"
	"github.com/fixerstudio/marketbrief/quote"
)

// https://query1.finance.yahoo.com/v8/finance/chart/^GSPC?range=1d&interval=1d
const chartBaseApi = "https://query1.finance.yahoo.com/v8/finance/chart/"

var hundred = decimal.NewFromInt(100)

// chartClient reads the chart endpoint directly through the shared http
// client, so proxy and timeout settings apply.
type chartClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewChartClient(httpClient *http.Client) *chartClient {
	return &chartClient{baseURL: chartBaseApi, httpClient: httpClient}
}

func (client *chartClient) GetName() string {
	return "YahooChart"
}

func (client *chartClient) GetQuote(ctx context.Context, symbol string) (*quote.Quote, error) {
	body, err := client.httpClient.Get(ctx, client.baseURL+url.PathEscape(symbol), map[string]string{
		"range":    "1d",
		"interval": "1d",
	})
	if err != nil {
		// Yahoo explains most failures in the body
		if desc, derr := jsonparser.GetString(body, "chart", "error", "description"); derr == nil && desc != "" {
			return nil, errors.Errorf("%s - %s: %s", client.GetName(), symbol, desc)
		}
		return nil, errors.Wrapf(err, "%s - get %s", client.GetName(), symbol)
	}

	meta, _, _, err := jsonparser.Get(body, "chart", "result", "[0]", "meta")
	if err != nil {
		if desc, derr := jsonparser.GetString(body, "chart", "error", "description"); derr == nil && desc != "" {
			return nil, errors.Errorf("%s - %s: %s", client.GetName(), symbol, desc)
		}
		return nil, errors.Wrapf(ErrNotFound, "%s - %s", client.GetName(), symbol)
	}
	return client.parseMeta(symbol, meta)
}

func (client *chartClient) parseMeta(symbol string, meta []byte) (*quote.Quote, error) {
	price, err := jsonparser.GetFloat(meta, "regularMarketPrice")
	if err != nil {
		return nil, errors.Wrapf(err, "%s - %s has no regularMarketPrice", client.GetName(), symbol)
	}

	q := &quote.Quote{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(price),
		Time:   time.Now(),
		Source: client.GetName(),
		Extra:  make(map[string]interface{}),
	}
	if ts, err := jsonparser.GetInt(meta, "regularMarketTime"); err == nil && ts > 0 {
		q.Time = time.Unix(ts, 0)
	}
	if name, err := jsonparser.GetString(meta, "shortName"); err == nil {
		q.Name = name
	}
	if currency, err := jsonparser.GetString(meta, "currency"); err == nil {
		q.Currency = currency
	}
	for _, key := range []string{"exchangeName", "fullExchangeName", "instrumentType", "exchangeTimezoneName"} {
		if v, err := jsonparser.GetString(meta, key); err == nil {
			q.Extra[key] = v
		}
	}

	prev, err := jsonparser.GetFloat(meta, "chartPreviousClose")
	if err != nil {
		prev, err = jsonparser.GetFloat(meta, "previousClose")
	}
	if err == nil && prev != 0 {
		prevClose := decimal.NewFromFloat(prev)
		q.Change = q.Price.Sub(prevClose)
		q.ChangePercent = q.Change.Div(prevClose).Mul(hundred).Round(4)
		q.Extra["regularMarketPreviousClose"] = prev
	}
	return q, nil
}

func init() {
	quote.Register(func(cfg *config.Config, httpClient *http.Client) quote.Client {
		return NewChartClient(httpClient)
	})
}
