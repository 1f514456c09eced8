package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// funcClient answers lookups with fn.
type funcClient struct {
	name string
	fn   func(ctx context.Context, symbol string) (*Quote, error)
}

func (c *funcClient) GetName() string { return c.name }
func (c *funcClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return c.fn(ctx, symbol)
}

func priced(symbol string) *Quote {
	return &Quote{Symbol: symbol, Price: decimal.NewFromInt(int64(len(symbol))), Time: time.Unix(1700000000, 0)}
}

// failing rejects every symbol starting with "BAD".
func failing(_ context.Context, symbol string) (*Quote, error) {
	if strings.HasPrefix(symbol, "BAD") {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	return priced(symbol), nil
}

func TestFetchBatch_EmptyInput(t *testing.T) {
	t.Parallel()

	// Arrange: a mock without expectations fails on any call.
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	agg := NewAggregator(client, time.Second, nil)

	// Act
	results, err := agg.FetchBatch(context.Background(), []string{})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, results)
	require.Empty(t, results)
}

func TestFetchBatch_IsolatesFailedSymbol(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	client.EXPECT().GetName().Return("Mock").AnyTimes()
	client.EXPECT().GetQuote(gomock.Any(), "BAD.SYM").Return(nil, errors.New("Not Found")).Times(1)
	client.EXPECT().GetQuote(gomock.Any(), "^GSPC").Return(priced("^GSPC"), nil).Times(1)
	client.EXPECT().GetQuote(gomock.Any(), "^VIX").Return(priced("^VIX"), nil).Times(1)

	agg := NewAggregator(client, time.Second, nil)
	results, err := agg.FetchBatch(context.Background(), []string{"BAD.SYM", "^GSPC", "^VIX"})

	require.NoError(t, err)
	require.Len(t, results, 3)
	require.True(t, results[0].Failed())
	require.Equal(t, "BAD.SYM", results[0].Symbol)
	require.ErrorIs(t, results[0].Err, ErrSymbolLookupFailed)
	require.False(t, results[1].Failed())
	require.Equal(t, "^GSPC", results[1].Quote.Symbol)
	require.False(t, results[2].Failed())
	require.Equal(t, "^VIX", results[2].Quote.Symbol)
}

func TestFetchBatch_AllFail(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(&funcClient{name: "Fake", fn: failing}, time.Second, nil)
	symbols := []string{"BAD1", "BAD2", "BAD3", "BAD1"}

	results, err := agg.FetchBatch(context.Background(), symbols)

	require.NoError(t, err)
	require.Len(t, results, len(symbols))
	for i, r := range results {
		require.True(t, r.Failed(), "result %d should be a failure", i)
		require.Equal(t, symbols[i], r.Symbol)
	}
	require.Empty(t, Quotes(results))
}

func TestFetchBatch_PositionalWithDuplicatesAndOutOfOrderCompletion(t *testing.T) {
	t.Parallel()

	// Later symbols answer first.
	delays := map[string]time.Duration{"A": 100 * time.Millisecond, "B": 50 * time.Millisecond, "C": 0}
	var mu sync.Mutex
	var calls int
	client := &funcClient{name: "Fake", fn: func(ctx context.Context, symbol string) (*Quote, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(delays[symbol])
		return priced(symbol), nil
	}}
	agg := NewAggregator(client, time.Second, nil)
	symbols := []string{"A", "B", "C", "A"}

	start := time.Now()
	results, err := agg.FetchBatch(context.Background(), symbols)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, len(symbols))
	for i, r := range results {
		require.Equal(t, symbols[i], r.Symbol)
		require.Equal(t, symbols[i], r.Quote.Symbol)
	}
	require.Equal(t, len(symbols), calls, "duplicates are fetched independently")
	// Lookups run concurrently, so the batch takes about the slowest one.
	require.Less(t, elapsed, 220*time.Millisecond)
}

func TestFetchBatch_LookupTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	client := &funcClient{name: "Slow", fn: func(ctx context.Context, symbol string) (*Quote, error) {
		if symbol == "SLOW" {
			// ignores ctx on purpose
			<-release
		}
		return priced(symbol), nil
	}}
	agg := NewAggregator(client, 50*time.Millisecond, nil)

	start := time.Now()
	results, err := agg.FetchBatch(context.Background(), []string{"SLOW", "FAST"})

	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.True(t, results[0].Failed())
	require.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	require.ErrorIs(t, results[0].Err, ErrSymbolLookupFailed)
	var lookupErr *LookupError
	require.ErrorAs(t, results[0].Err, &lookupErr)
	require.Equal(t, "Slow", lookupErr.Source)
	require.False(t, results[1].Failed())
}

func TestFetchBatch_PanicIsIsolated(t *testing.T) {
	t.Parallel()

	client := &funcClient{name: "Panicky", fn: func(ctx context.Context, symbol string) (*Quote, error) {
		if symbol == "BOOM" {
			panic("provider bug")
		}
		return priced(symbol), nil
	}}
	agg := NewAggregator(client, time.Second, nil)

	results, err := agg.FetchBatch(context.Background(), []string{"OK", "BOOM"})

	require.NoError(t, err)
	require.False(t, results[0].Failed())
	require.True(t, results[1].Failed())
	require.Contains(t, results[1].Err.Error(), "provider bug")
}

func TestFetchBatch_NilQuoteIsAFailure(t *testing.T) {
	t.Parallel()

	client := &funcClient{name: "Empty", fn: func(context.Context, string) (*Quote, error) { return nil, nil }}
	results, err := NewAggregator(client, time.Second, nil).FetchBatch(context.Background(), []string{"X"})

	require.NoError(t, err)
	require.True(t, results[0].Failed())
}

func TestFetchBatch_MechanismFaults(t *testing.T) {
	t.Parallel()

	t.Run("no client", func(t *testing.T) {
		_, err := NewAggregator(nil, time.Second, nil).FetchBatch(context.Background(), []string{"A"})
		require.ErrorIs(t, err, ErrAggregationFailed)
	})

	t.Run("nil aggregator", func(t *testing.T) {
		var agg *Aggregator
		_, err := agg.FetchBatch(context.Background(), []string{"A"})
		require.ErrorIs(t, err, ErrAggregationFailed)
	})

	t.Run("context already done", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := NewMockClient(ctrl)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewAggregator(client, time.Second, nil).FetchBatch(ctx, []string{"A"})
		require.ErrorIs(t, err, ErrAggregationFailed)
	})
}

func TestFetchBatch_ConcurrentCallsDoNotShareState(t *testing.T) {
	t.Parallel()

	client := &funcClient{name: "Fake", fn: func(ctx context.Context, symbol string) (*Quote, error) {
		time.Sleep(time.Duration(len(symbol)) * time.Millisecond)
		return failing(ctx, symbol)
	}}
	agg := NewAggregator(client, time.Second, nil)
	batches := [][]string{
		{"^GSPC", "BAD.SYM", "^VIX"},
		{"^VIX", "^GSPC", "GC=F", "BAD.X"},
		{"BAD.SYM", "BZ=F"},
	}

	var wg sync.WaitGroup
	for round := 0; round < 10; round++ {
		for _, batch := range batches {
			wg.Add(1)
			go func(batch []string) {
				defer wg.Done()
				results, err := agg.FetchBatch(context.Background(), batch)
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if len(results) != len(batch) {
					t.Errorf("Expected %d results, got %d", len(batch), len(results))
					return
				}
				for i, r := range results {
					if r.Symbol != batch[i] {
						t.Errorf("Result %d is for %s, want %s", i, r.Symbol, batch[i])
					}
					if r.Failed() != strings.HasPrefix(batch[i], "BAD") {
						t.Errorf("Unexpected outcome for %s: %v", batch[i], r.Err)
					}
				}
			}(batch)
		}
	}
	wg.Wait()
}

func TestFetchOverview(t *testing.T) {
	t.Parallel()

	overview := []string{"^GSPC", "BAD.N225", "GC=F", "BAD.VIX"}
	agg := NewAggregator(&funcClient{name: "Fake", fn: failing}, time.Second, overview)

	quotes, err := agg.FetchOverview(context.Background())

	require.NoError(t, err)
	require.LessOrEqual(t, len(quotes), len(overview))
	require.Len(t, quotes, 2)
	require.Equal(t, "^GSPC", quotes[0].Symbol)
	require.Equal(t, "GC=F", quotes[1].Symbol)

	t.Run("all failing", func(t *testing.T) {
		agg := NewAggregator(&funcClient{name: "Fake", fn: failing}, time.Second, []string{"BAD1", "BAD2"})
		quotes, err := agg.FetchOverview(context.Background())
		require.NoError(t, err)
		require.Empty(t, quotes)
	})

	t.Run("mechanism fault", func(t *testing.T) {
		_, err := NewAggregator(nil, time.Second, overview).FetchOverview(context.Background())
		require.ErrorIs(t, err, ErrAggregationFailed)
	})
}
