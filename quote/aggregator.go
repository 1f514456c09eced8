package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultLookupTimeout = 10 * time.Second

// LookupError describes why one symbol of a batch could not be resolved.
// It matches both ErrSymbolLookupFailed and the underlying cause.
type LookupError struct {
	Symbol  string
	Source  string
	Elapsed time.Duration
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %s from %s after %s: %v", ErrSymbolLookupFailed, e.Symbol, e.Source,
		e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *LookupError) Unwrap() []error {
	return []error{ErrSymbolLookupFailed, e.Err}
}

// Aggregator fans a batch of symbols out to a Client, one goroutine per
// symbol, and reconciles the outcomes by position.
type Aggregator struct {
	Client        Client
	LookupTimeout time.Duration
	// Overview is the fixed symbol set behind FetchOverview.
	Overview []string
}

func NewAggregator(client Client, lookupTimeout time.Duration, overview []string) *Aggregator {
	return &Aggregator{Client: client, LookupTimeout: lookupTimeout, Overview: overview}
}

// FetchBatch returns exactly one Result per symbol, results[i] belonging to
// symbols[i]. A failing symbol becomes a failed Result and never fails the
// call, the returned error is only set when the fan-out could not start.
func (a *Aggregator) FetchBatch(ctx context.Context, symbols []string) ([]Result, error) {
	if err := a.ready(ctx); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return []Result{}, nil
	}

	pendings := a.getQuotesAsync(ctx, symbols)
	results := make([]Result, len(pendings))
	for i, doneCh := range pendings {
		results[i] = <-doneCh
	}
	return results, nil
}

// FetchOverview resolves the Overview symbols and drops the ones that failed,
// survivors keep the configured order.
func (a *Aggregator) FetchOverview(ctx context.Context) ([]*Quote, error) {
	if a == nil {
		return nil, errors.Wrap(ErrAggregationFailed, "no aggregator")
	}
	results, err := a.FetchBatch(ctx, a.Overview)
	if err != nil {
		return nil, err
	}
	quotes := Quotes(results)
	if dropped := len(results) - len(quotes); dropped > 0 {
		logrus.Debugf("Dropped %d of %d overview symbols", dropped, len(results))
	}
	return quotes, nil
}

func (a *Aggregator) ready(ctx context.Context) error {
	if a == nil || a.Client == nil {
		return errors.Wrap(ErrAggregationFailed, "no quote client configured")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(ErrAggregationFailed, "not dispatching: %v", err)
	}
	return nil
}

func (a *Aggregator) lookupTimeout() time.Duration {
	if a.LookupTimeout > 0 {
		return a.LookupTimeout
	}
	return DefaultLookupTimeout
}

// Return a slice of waiting chans, each of them represents a pending request
func (a *Aggregator) getQuotesAsync(ctx context.Context, symbols []string) []chan Result {
	// Use slice to hold the waiting chans in order to keep requested order
	waitingChans := make([]chan Result, 0, len(symbols))
	for _, symbol := range symbols {
		doneCh := make(chan Result, 1)
		waitingChans = append(waitingChans, doneCh)
		go func(symbol string) {
			doneCh <- a.lookup(ctx, symbol)
		}(symbol)
	}
	return waitingChans
}

type outcome struct {
	quote *Quote
	err   error
}

// lookup never takes longer than the lookup timeout, even when the client
// ignores ctx. A late answer is discarded.
func (a *Aggregator) lookup(ctx context.Context, symbol string) Result {
	ctx, cancel := context.WithTimeout(ctx, a.lookupTimeout())
	defer cancel()

	start := time.Now()
	outCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				outCh <- outcome{err: errors.Errorf("panic: %v", p)}
			}
		}()
		q, err := a.Client.GetQuote(ctx, symbol)
		outCh <- outcome{q, err}
	}()

	var out outcome
	select {
	case out = <-outCh:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err == nil && out.quote == nil {
		out.err = errors.New("provider returned no quote")
	}
	if out.err != nil {
		lookupErr := &LookupError{
			Symbol:  symbol,
			Source:  a.Client.GetName(),
			Elapsed: time.Since(start),
			Err:     out.err,
		}
		logEntry := logrus.WithError(out.err).WithFields(logrus.Fields{"symbol": symbol, "source": lookupErr.Source})
		if errors.Is(out.err, context.DeadlineExceeded) {
			logEntry = logEntry.WithField("elapsed", lookupErr.Elapsed.String())
		}
		logEntry.Warnf("Failed to get quote for %s from %s", symbol, lookupErr.Source)
		return Result{Symbol: symbol, Err: lookupErr}
	}
	return Result{Symbol: symbol, Quote: out.quote}
}
