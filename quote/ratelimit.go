package quote

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Limited gates calls to the wrapped Client with a token bucket, so a whole
// batch fan-out cannot burst past the provider's limits.
type Limited struct {
	Client
	limiter *rate.Limiter
}

// NewLimited wraps client when perSecond is positive, otherwise client is
// returned as is.
func NewLimited(client Client, perSecond float64, burst int) Client {
	if perSecond <= 0 {
		return client
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{Client: client, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(err, "waiting for %s rate limit", l.GetName())
	}
	return l.Client.GetQuote(ctx, symbol)
}
