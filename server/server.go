package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fixerstudio/marketbrief/portfolio"
	"github.com/fixerstudio/marketbrief/quote"
	"github.com/fixerstudio/marketbrief/report"
)

const (
	msgMarketDataFailed = "Failed to fetch market data"
	msgQuotesFailed     = "Failed to fetch quotes"
	msgSymbolsNotArray  = "Symbols must be an array"
)

type QuoteService interface {
	FetchBatch(ctx context.Context, symbols []string) ([]quote.Result, error)
	FetchOverview(ctx context.Context) ([]*quote.Quote, error)
}

type ReportService interface {
	Generate(ctx context.Context) (*report.Report, error)
}

type Server struct {
	quotes    QuoteService
	reports   ReportService
	portfolio *portfolio.Portfolio
	router    *mux.Router
}

func New(quotes QuoteService, reports ReportService, pf *portfolio.Portfolio) *Server {
	s := &Server{quotes: quotes, reports: reports, portfolio: pf, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/market-overview", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/quotes", s.handleQuotes).Methods(http.MethodPost)
	api.HandleFunc("/report", s.handleReport).Methods(http.MethodPost)
	api.HandleFunc("/portfolio", s.handleListHoldings).Methods(http.MethodGet)
	api.HandleFunc("/portfolio", s.handleAddHolding).Methods(http.MethodPost)
	api.HandleFunc("/portfolio/{id}", s.handleRemoveHolding).Methods(http.MethodDelete)
}

func (s *Server) Handler() http.Handler {
	return withJSONHeaders(recoverPanic(limitBody(logRequests(s.router))))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// search grounded reports are slow
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.quotes.FetchOverview(r.Context())
	if err != nil {
		logrus.WithField("route", r.URL.Path).WithError(err).Error("Failed to fetch market overview")
		writeError(w, http.StatusInternalServerError, msgMarketDataFailed)
		return
	}
	if quotes == nil {
		quotes = []*quote.Quote{}
	}
	writeJSON(w, http.StatusOK, quotes)
}

type quotesRequest struct {
	Symbols json.RawMessage `json:"symbols"`
}

// parseSymbols accepts only a JSON object whose symbols field is an array of
// strings.
func parseSymbols(r *http.Request) ([]string, error) {
	var req quotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Wrapf(quote.ErrInvalidInput, "decode body: %v", err)
	}
	if len(req.Symbols) == 0 || req.Symbols[0] != '[' {
		return nil, errors.Wrap(quote.ErrInvalidInput, "symbols is not an array")
	}
	var elems []*string
	if err := json.Unmarshal(req.Symbols, &elems); err != nil {
		return nil, errors.Wrapf(quote.ErrInvalidInput, "symbols: %v", err)
	}
	symbols := make([]string, len(elems))
	for i, elem := range elems {
		if elem == nil {
			return nil, errors.Wrapf(quote.ErrInvalidInput, "symbols[%d] is null", i)
		}
		symbols[i] = *elem
	}
	return symbols, nil
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	symbols, err := parseSymbols(r)
	if err != nil {
		logrus.WithField("route", r.URL.Path).Debugf("Rejected quotes request: %v", err)
		writeError(w, http.StatusBadRequest, msgSymbolsNotArray)
		return
	}
	results, err := s.quotes.FetchBatch(r.Context(), symbols)
	if err != nil {
		logrus.WithField("route", r.URL.Path).WithError(err).Errorf("Failed to fetch %d quotes", len(symbols))
		writeError(w, http.StatusInternalServerError, msgQuotesFailed)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusBadGateway, report.FailureMessage)
		return
	}
	rep, err := s.reports.Generate(r.Context())
	if err != nil {
		logrus.WithField("route", r.URL.Path).WithError(err).Error("Failed to generate report")
		writeError(w, http.StatusBadGateway, report.FailureMessage)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type holdingView struct {
	portfolio.Holding
	Percent float64 `json:"percent"`
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	slices := s.portfolio.Allocation()
	views := make([]holdingView, len(slices))
	for i, sl := range slices {
		views[i] = holdingView{Holding: sl.Holding, Percent: sl.Percent.InexactFloat64()}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string  `json:"symbol"`
		Name   string  `json:"name"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid holding")
		return
	}
	h, err := s.portfolio.Add(req.Symbol, req.Name, req.Weight)
	if err != nil {
		if errors.Is(err, portfolio.ErrInvalidHolding) {
			writeError(w, http.StatusBadRequest, "Invalid holding")
			return
		}
		logrus.WithField("route", r.URL.Path).WithError(err).Error("Failed to add holding")
		writeError(w, http.StatusInternalServerError, "Failed to add holding")
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	if !s.portfolio.Remove(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "Holding not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logrus.Warnf("Failed to write response, error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
