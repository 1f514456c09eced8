package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/buger/jsonparser"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/dashboard"
	"github.com/fixerstudio/marketbrief/http"
	"github.com/fixerstudio/marketbrief/logger"
	"github.com/fixerstudio/marketbrief/portfolio"
	"github.com/fixerstudio/marketbrief/quote"
	_ "github.com/fixerstudio/marketbrief/quote/yahoo"
	"github.com/fixerstudio/marketbrief/report"
	"github.com/fixerstudio/marketbrief/server"
	"github.com/fixerstudio/marketbrief/writer"
)

const releaseURL = "https://api.github.com/repos/fixerstudio/marketbrief/releases/latest"

func checkForUpdate(ctx context.Context, httpClient *http.Client) {
	body, err := httpClient.Get(ctx, releaseURL, nil)
	if err != nil {
		logrus.Debugf("Failed to fetch Github release page, error %s", err)
		return
	}
	tag, err := jsonparser.GetString(body, "tag_name")
	if err != nil || tag == "" {
		logrus.Debugf("Get an empty release tag?")
		return
	}
	htmlURL, _ := jsonparser.GetString(body, "html_url")
	tag = strings.TrimPrefix(tag, "v")
	logrus.Debugf("Latest release tag is %s", tag)
	if config.Version != "" && tag != config.Version {
		color.New(color.FgYellow).Fprintf(os.Stderr, "You are using version %s, however version %s is available.\n",
			config.Version, tag)
		color.New(color.FgYellow).Fprintf(os.Stderr, "You should consider getting the latest release from '%s'.\n",
			htmlURL)
	}
}

func newRequester(ctx context.Context, cfg *config.Config, agg *quote.Aggregator) *report.Requester {
	var generator report.TextGenerator
	gemini, err := report.NewGeminiGenerator(ctx, cfg.Gemini)
	if err != nil {
		logrus.Warnf("Reports are disabled, error: %v", err)
	} else {
		generator = gemini
	}
	return report.NewRequester(agg, generator)
}

func serve(ctx context.Context, cfg *config.Config, agg *quote.Aggregator, pf *portfolio.Portfolio) error {
	pf.OnChange(func(symbols []string) {
		logrus.Infof("Watchlist changed, %d symbols tracked", len(symbols))
	})
	return server.New(agg, newRequester(ctx, cfg, agg), pf).Run(ctx, cfg.Listen)
}

func generateReport(ctx context.Context, cfg *config.Config, agg *quote.Aggregator) error {
	logrus.Infof("Generating market report with %s, this may take a minute", cfg.Gemini.Model)
	rep, err := newRequester(ctx, cfg, agg).Generate(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, report.FailureMessage)
		return err
	}
	if err := report.Render(colorable.NewColorableStdout(), rep, cfg.Style); err != nil {
		return err
	}
	if cfg.ReportOutput != "" {
		if err := report.Save(cfg.ReportOutput, rep); err != nil {
			return err
		}
		logrus.Infof("Report saved to %s", cfg.ReportOutput)
	}
	return nil
}

func runDashboard(ctx context.Context, cfg *config.Config, agg *quote.Aggregator, pf *portfolio.Portfolio) error {
	tw, err := writer.NewTableWriter(cfg.Columns)
	if err != nil {
		return err
	}
	interval := time.Duration(cfg.Refresh) * time.Second
	if cfg.Once {
		interval = 0
	}
	if interval != 0 {
		logrus.Infof("Auto refresh on every %d seconds", cfg.Refresh)
	}

	logrus.SetOutput(tw)
	defer logrus.SetOutput(colorable.NewColorableStderr())

	poller := &dashboard.Poller{
		Interval: interval,
		Fetch:    agg.FetchBatch,
		Render: func(symbols []string, results []quote.Result) {
			tw.Render(pf.Valuate(results))
		},
	}
	pf.OnChange(poller.Replace)
	if cfg.WatchPortfolio(func(holdings []config.Holding) { pf.Replace(holdings...) }) {
		logrus.Debugln("Watching the config file for portfolio changes")
	}
	poller.Start(ctx, pf.Symbols())
	select {
	case <-poller.Done():
	case <-ctx.Done():
	}
	poller.Stop()
	return nil
}

func main() {
	cfg := config.Parse()
	closer, err := logger.Setup(logrus.StandardLogger(), cfg)
	if err != nil {
		logrus.Fatalf("Failed to set up logging, error: %v", err)
	}
	defer closer.Close()

	httpClient := http.New(cfg.Timeout, cfg.Proxy)
	registry := quote.NewRegistry(cfg, httpClient)
	if cfg.ListProviders {
		fmt.Fprintln(os.Stderr, "Supported quote providers:")
		for _, name := range registry.GetAllNames() {
			fmt.Fprintf(os.Stderr, " %s\n", name)
		}
		return
	}

	client := registry.GetClient(cfg.Provider)
	if client == nil {
		logrus.Errorf("Unknown provider %s, supported providers are %s", cfg.Provider,
			strings.Join(registry.GetAllNames(), ", "))
		os.Exit(1)
	}
	client = quote.NewLimited(client, cfg.RateLimit, cfg.RateBurst)
	agg := quote.NewAggregator(client, cfg.LookupTimeout, cfg.Overview)
	pf := portfolio.New(cfg.Portfolio...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case cfg.Serve:
		err = serve(ctx, cfg, agg, pf)
	case cfg.Report:
		err = generateReport(ctx, cfg, agg)
	default:
		go checkForUpdate(ctx, httpClient)
		err = runDashboard(ctx, cfg, agg, pf)
	}
	if err != nil {
		logrus.Errorf("%v", err)
		closer.Close()
		os.Exit(1)
	}
}
