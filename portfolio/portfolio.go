package portfolio

import (
	"strings"
	"sync"

	gonanoid "github.com/matoous/go-nanoid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/quote"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	ErrInvalidHolding = errors.New("invalid holding")
	hundred           = decimal.NewFromInt(100)
)

type Holding struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Slice is a holding with its share of the total weight, in percent.
type Slice struct {
	Holding
	Percent decimal.Decimal
}

// Portfolio keeps holdings in memory only. It is safe for concurrent use.
type Portfolio struct {
	mu        sync.RWMutex
	holdings  []Holding
	listeners []func(symbols []string)
}

// New builds a portfolio from configured holdings, skipping invalid ones.
func New(holdings ...config.Holding) *Portfolio {
	return &Portfolio{holdings: build(holdings)}
}

func build(holdings []config.Holding) []Holding {
	built := make([]Holding, 0, len(holdings))
	for _, h := range holdings {
		held, err := newHolding(h.Symbol, h.Name, h.Weight)
		if err != nil {
			logrus.Warnf("Skipping configured holding: %v", err)
			continue
		}
		built = append(built, held)
	}
	return built
}

// Replace swaps every holding at once, listeners are notified a single time.
func (p *Portfolio) Replace(holdings ...config.Holding) {
	built := build(holdings)
	p.mu.Lock()
	p.holdings = built
	p.mu.Unlock()
	p.notify()
}

// Add appends a holding and notifies OnChange listeners.
func (p *Portfolio) Add(symbol, name string, weight float64) (Holding, error) {
	h, err := newHolding(symbol, name, weight)
	if err != nil {
		return Holding{}, err
	}
	p.mu.Lock()
	p.holdings = append(p.holdings, h)
	p.mu.Unlock()
	p.notify()
	return h, nil
}

func newHolding(symbol, name string, weight float64) (Holding, error) {
	symbol, name = strings.TrimSpace(symbol), strings.TrimSpace(name)
	if symbol == "" {
		return Holding{}, errors.Wrap(ErrInvalidHolding, "symbol is empty")
	}
	if name == "" {
		name = symbol
	}
	if weight <= 0 {
		return Holding{}, errors.Wrapf(ErrInvalidHolding, "weight of %s must be positive, got %v", symbol, weight)
	}
	id, err := gonanoid.Generate(idAlphabet, 8)
	if err != nil {
		return Holding{}, errors.Wrap(err, "generate holding id")
	}
	return Holding{ID: id, Symbol: symbol, Name: name, Weight: weight}, nil
}

// Remove deletes the holding with id, it reports whether one was found.
func (p *Portfolio) Remove(id string) bool {
	p.mu.Lock()
	found := false
	for i, h := range p.holdings {
		if h.ID == id {
			p.holdings = append(p.holdings[:i], p.holdings[i+1:]...)
			found = true
			break
		}
	}
	p.mu.Unlock()

	if found {
		p.notify()
	}
	return found
}

func (p *Portfolio) Holdings() []Holding {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Holding(nil), p.holdings...)
}

// Symbols is the watchlist, in holding order.
func (p *Portfolio) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	symbols := make([]string, len(p.holdings))
	for i, h := range p.holdings {
		symbols[i] = h.Symbol
	}
	return symbols
}

// OnChange registers fn to receive the new watchlist after every change.
func (p *Portfolio) OnChange(fn func(symbols []string)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Portfolio) notify() {
	p.mu.RLock()
	listeners := append([]func([]string){}, p.listeners...)
	p.mu.RUnlock()

	symbols := p.Symbols()
	for _, fn := range listeners {
		fn(symbols)
	}
}

// Allocation normalises weights so the percents sum to 100, rounded to 2
// places. A zero total weight yields zero percents.
func (p *Portfolio) Allocation() []Slice {
	holdings := p.Holdings()
	return allocate(holdings)
}

func allocate(holdings []Holding) []Slice {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(decimal.NewFromFloat(h.Weight))
	}
	slices := make([]Slice, len(holdings))
	for i, h := range holdings {
		slices[i] = Slice{Holding: h, Percent: decimal.Zero}
		if total.IsPositive() {
			slices[i].Percent = decimal.NewFromFloat(h.Weight).Mul(hundred).DivRound(total, 2)
		}
	}
	return slices
}

// Position is one holding joined with its latest quote, Quote is nil when
// the lookup failed.
type Position struct {
	Slice
	Quote *quote.Quote
}

type Summary struct {
	Positions []Position
	// ChangePercent is the weight-averaged change of quoted holdings.
	ChangePercent decimal.Decimal
	Missing       int
}

// Valuate values the current holdings, see Valuate.
func (p *Portfolio) Valuate(results []quote.Result) Summary {
	return Valuate(p.Holdings(), results)
}

// Valuate joins results to holdings by position, so results must come from
// a batch over Symbols() taken at the same time as holdings.
func Valuate(holdings []Holding, results []quote.Result) Summary {
	slices := allocate(holdings)
	summary := Summary{Positions: make([]Position, len(slices))}

	weighted, quotedWeight := decimal.Zero, decimal.Zero
	for i, s := range slices {
		summary.Positions[i] = Position{Slice: s}
		if i >= len(results) || results[i].Failed() || results[i].Symbol != s.Symbol {
			summary.Missing++
			continue
		}
		q := results[i].Quote
		summary.Positions[i].Quote = q
		w := decimal.NewFromFloat(s.Weight)
		weighted = weighted.Add(q.ChangePercent.Mul(w))
		quotedWeight = quotedWeight.Add(w)
	}
	if quotedWeight.IsPositive() {
		summary.ChangePercent = weighted.DivRound(quotedWeight, 4)
	}
	return summary
}
