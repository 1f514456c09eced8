package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	ColumnSymbol    = "Symbol"
	ColumnName      = "Name"
	ColumnPrice     = "Price"
	ColumnChangePct = "%Change"
	ColumnWeight    = "Weight"
	ColumnSource    = "Source"
	ColumnUpdated   = "Updated"
)

// SupportedColumns lists the dashboard columns in their default order.
func SupportedColumns() []string {
	return []string{ColumnSymbol, ColumnName, ColumnPrice, ColumnChangePct, ColumnWeight, ColumnSource, ColumnUpdated}
}

// Holding is one watchlist entry as written in the config file.
type Holding struct {
	Symbol string  `mapstructure:"symbol"`
	Name   string  `mapstructure:"name"`
	Weight float64 `mapstructure:"weight"`
}

type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

type Config struct {
	Provider      string        `mapstructure:"provider"`
	Timeout       int           `mapstructure:"timeout"`
	Proxy         string        `mapstructure:"proxy"`
	Refresh       int           `mapstructure:"refresh"`
	Columns       []string      `mapstructure:"show"`
	Debug         bool          `mapstructure:"debug"`
	ListProviders bool          `mapstructure:"list_providers"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	Overview      []string      `mapstructure:"overview"`
	Portfolio     []Holding     `mapstructure:"portfolio"`

	Serve        bool   `mapstructure:"serve"`
	Listen       string `mapstructure:"listen"`
	Report       bool   `mapstructure:"report"`
	ReportOutput string `mapstructure:"report_output"`
	Once         bool   `mapstructure:"once"`
	Style        string `mapstructure:"style"`
	LogFile      string `mapstructure:"log_file"`

	Gemini GeminiConfig `mapstructure:"gemini"`

	watcher *viper.Viper
}

// DefaultOverview is the reference set fed to the report: broad indices,
// gold and brent futures, and the volatility index.
func DefaultOverview() []string {
	return []string{
		"^GSPC",     // S&P 500
		"^N225",     // Nikkei 225
		"000001.SS", // SSE Composite
		"399001.SZ", // SZSE Component
		"^HSI",      // Hang Seng
		"GC=F",      // Gold
		"BZ=F",      // Brent Crude
		"^VIX",
	}
}

func DefaultPortfolio() []Holding {
	return []Holding{
		{Symbol: "005930.KS", Name: "Samsung Electronics", Weight: 3.125},
		{Symbol: "000660.KS", Name: "SK Hynix", Weight: 3.125},
		{Symbol: "2823.HK", Name: "iShares FTSE China A50 ETF", Weight: 6.25},
		{Symbol: "8058.T", Name: "Mitsubishi Corp", Weight: 2.08},
		{Symbol: "8031.T", Name: "Mitsui & Co", Weight: 2.08},
		{Symbol: "8001.T", Name: "Itochu", Weight: 2.08},
		{Symbol: "8002.T", Name: "Marubeni", Weight: 2.08},
		{Symbol: "8007.T", Name: "Sumitomo Corp", Weight: 2.08},
		{Symbol: "9984.T", Name: "SoftBank Group", Weight: 2.1},
		{Symbol: "^VIX", Name: "CBOE Volatility Index", Weight: 25},
		{Symbol: "BZ=F", Name: "Brent Crude", Weight: 12.5},
		{Symbol: "GC=F", Name: "Gold", Weight: 12.5},
		{Symbol: "^WIG", Name: "WIG Poland", Weight: 8.33},
		{Symbol: "^VNINDEX", Name: "VN-Index", Weight: 8.33},
		{Symbol: "^N225", Name: "Nikkei 225", Weight: 8.34},
	}
}
