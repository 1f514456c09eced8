package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/quote"
)

type fakeOverview struct {
	quotes []*quote.Quote
	err    error
}

func (f *fakeOverview) FetchOverview(context.Context) ([]*quote.Quote, error) {
	return f.quotes, f.err
}

type fakeGenerator struct {
	text         string
	sources      []Citation
	err          error
	prompt       string
	instructions string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt, instructions string) (string, []Citation, error) {
	f.prompt, f.instructions = prompt, instructions
	return f.text, f.sources, f.err
}

func fixedNow() time.Time { return time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) }

func TestRequester_Generate(t *testing.T) {
	overview := &fakeOverview{quotes: []*quote.Quote{
		{Symbol: "^GSPC", Price: decimal.RequireFromString("5021.84"), Extra: map[string]interface{}{"marketState": "CLOSED"}},
	}}

	t.Run("embeds overview and returns citations", func(t *testing.T) {
		gen := &fakeGenerator{text: "# Review", sources: []Citation{{Title: "Reuters", URI: "https://reuters.com/a"}}}
		r := NewRequester(overview, gen)
		r.now = fixedNow

		rep, err := r.Generate(context.Background())

		require.NoError(t, err)
		require.Equal(t, "# Review", rep.Text)
		require.Equal(t, gen.sources, rep.Sources)
		require.Equal(t, fixedNow(), rep.GeneratedAt)
		require.Contains(t, gen.prompt, `"symbol":"^GSPC"`)
		require.Contains(t, gen.prompt, `"marketState":"CLOSED"`)
		require.Contains(t, gen.instructions, "Fixer Studio")
	})

	t.Run("no sources is an empty list", func(t *testing.T) {
		rep, err := NewRequester(overview, &fakeGenerator{text: "ok"}).Generate(context.Background())

		require.NoError(t, err)
		require.NotNil(t, rep.Sources)
		require.Empty(t, rep.Sources)
	})

	t.Run("empty overview still asks", func(t *testing.T) {
		gen := &fakeGenerator{text: "quiet day"}
		_, err := NewRequester(&fakeOverview{quotes: []*quote.Quote{}}, gen).Generate(context.Background())

		require.NoError(t, err)
		require.Contains(t, gen.prompt, "[]")
	})

	failures := map[string]*Requester{
		"overview fault": NewRequester(&fakeOverview{err: quote.ErrAggregationFailed}, &fakeGenerator{text: "x"}),
		"remote failure": NewRequester(overview, &fakeGenerator{err: errors.New("quota exceeded")}),
		"empty text":     NewRequester(overview, &fakeGenerator{text: "  \n"}),
		"not configured": NewRequester(nil, nil),
	}
	for name, r := range failures {
		r := r
		t.Run(name, func(t *testing.T) {
			rep, err := r.Generate(context.Background())

			require.Nil(t, rep)
			require.ErrorIs(t, err, ErrReportGenerationFailed)
		})
	}
}

func TestCitations(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		GroundingMetadata: &genai.GroundingMetadata{GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{Title: "Bloomberg", URI: "https://bloomberg.com/x"}},
			{},
			{Web: &genai.GroundingChunkWeb{Title: "FT", URI: "https://ft.com/y"}},
		}},
	}}}

	require.Equal(t, []Citation{
		{Title: "Bloomberg", URI: "https://bloomberg.com/x"},
		{Title: "FT", URI: "https://ft.com/y"},
	}, citations(resp))
	require.Empty(t, citations(&genai.GenerateContentResponse{}))
	require.Empty(t, citations(nil))
}

func TestNewGeminiGenerator_NoKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), config.GeminiConfig{Model: "gemini-2.5-pro"})
	require.Error(t, err)
}

func TestRenderAndSave(t *testing.T) {
	rep := &Report{
		Text:        "# Market Review\n\nStocks rallied.",
		Sources:     []Citation{{Title: "Reuters", URI: "https://reuters.com/a"}, {URI: "https://example.org/b"}},
		GeneratedAt: fixedNow(),
	}

	md := Markdown(rep)
	require.Contains(t, md, "1. [Reuters](https://reuters.com/a)")
	require.Contains(t, md, "2. [https://example.org/b](https://example.org/b)")
	require.Contains(t, md, "2026-03-02 15:00:00")

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, "notty"))
	require.Contains(t, buf.String(), "Market Review")
	require.Contains(t, buf.String(), "Reuters")

	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, Save(path, rep))
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, md, string(saved))
}
