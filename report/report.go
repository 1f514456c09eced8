package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fixerstudio/marketbrief/quote"
)

// ErrReportGenerationFailed wraps every failure of Requester.Generate, no
// partial report is ever returned.
var ErrReportGenerationFailed = errors.New("report generation failed")

// FailureMessage is the only thing an end user learns about a failed report.
const FailureMessage = "Report generation failed, please check the network or API configuration"

const instructions = `You are Fixer, a top-tier global macro and A-share short-term sentiment analyst.
You read sentiment cycles through the linkage of global markets.
Using the real-time Yahoo Finance quotes provided, write a rigorous report with an international view titled
"Fixer Studio: Global Linkage and A-Share Sentiment Review".

The report must contain these sections:
1. Global macro backdrop (US and Japanese equities, commodities, and their impact on A-shares)
2. A-share market summary (index moves, volume changes, qualitative market sentiment)
3. Sentiment cycle assessment (leading stocks, cycle stage, risk appetite)
4. Main themes (core logic, leading sectors, leader performance)
5. Strategy for tomorrow and risk warnings (opportunities, global risk points)

Terminology:
- Sentiment cycle: fermentation, divergence, consensus, ebb, freezing point.
- Macro view: liquidity premium, risk aversion, currency linkage, commodity driven.

Output format: Markdown.
Start the report with "Note: this only demonstrates AI technology and is not investment advice." Sign it as Fixer Studio.`

const promptTemplate = `Generate the review report from the following real-time global market data:

%s

Focus on how global market swings feed into the A-share sentiment cycle.`

type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Report struct {
	Text        string     `json:"text"`
	Sources     []Citation `json:"sources"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// TextGenerator is a remote generative-text service that may search the web
// on its own to ground the answer.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, instructions string) (string, []Citation, error)
}

type OverviewFetcher interface {
	FetchOverview(ctx context.Context) ([]*quote.Quote, error)
}

type Requester struct {
	Overview  OverviewFetcher
	Generator TextGenerator
	now       func() time.Time
}

func NewRequester(overview OverviewFetcher, generator TextGenerator) *Requester {
	return &Requester{Overview: overview, Generator: generator, now: time.Now}
}

// Generate snapshots the market overview and asks the generator for a report.
func (r *Requester) Generate(ctx context.Context) (*Report, error) {
	if r.Overview == nil || r.Generator == nil {
		return nil, errors.Wrap(ErrReportGenerationFailed, "requester is not configured")
	}

	quotes, err := r.Overview.FetchOverview(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch market overview for report")
		return nil, errors.Wrapf(ErrReportGenerationFailed, "fetch overview: %v", err)
	}
	data, err := json.Marshal(quotes)
	if err != nil {
		return nil, errors.Wrapf(ErrReportGenerationFailed, "encode overview: %v", err)
	}
	logrus.Debugf("Requesting report grounded on %d quotes", len(quotes))

	text, sources, err := r.Generator.Generate(ctx, BuildPrompt(data), instructions)
	if err != nil {
		logrus.WithError(err).Error("Report generator failed")
		return nil, errors.Wrapf(ErrReportGenerationFailed, "generate: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrap(ErrReportGenerationFailed, "generator returned no text")
	}
	if sources == nil {
		sources = []Citation{}
	}
	return &Report{Text: text, Sources: sources, GeneratedAt: r.now()}, nil
}

// BuildPrompt embeds the serialized overview into the fixed prompt.
func BuildPrompt(overview []byte) string {
	return fmt.Sprintf(promptTemplate, overview)
}
