package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Will be set by go-build
var (
	Version string
	Rev     string
)

//go:embed marketbrief.example.yml
var exampleConfig string

const envPrefix = "MARKETBRIEF"

// Parse reads flags, the config file and the environment. It exits the
// process for --help, --version and --example-config-file.
func Parse() *Config {
	// Set log format
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	}
	logrus.SetFormatter(formatter)
	logrus.SetOutput(colorable.NewColorableStderr()) // For Windows

	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	cfg, err := load(fs, os.Args[1:], true)
	if err != nil {
		logrus.Fatalf("Failed to load config, error: %v", err)
	}
	return cfg
}

// Load builds a Config from args, without the interactive flags of Parse.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("marketbrief", pflag.ContinueOnError)
	return load(fs, args, false)
}

func load(fs *pflag.FlagSet, args []string, interactive bool) (*Config, error) {
	showVersion := fs.BoolP("version", "v", false, "Show version number")
	showHelp := fs.BoolP("help", "h", false, "Show usage message")
	fs.MarkHidden("help")
	fs.BoolP("debug", "d", false, "Enable debug mode")
	fs.BoolP("list-providers", "l", false, "List supported quote providers")
	fs.String("provider", "Yahoo", "Quote provider used to fetch market data")
	fs.IntP("refresh", "r", 60, "Refresh the dashboard on every specified seconds, 0 renders once, "+
		"\nnote every provider has a rate limit, too frequent refresh may get your IP banned")

	var configFile string
	fs.StringVarP(&configFile, "config-file", "c", "", `Config file path, use "--example-config-file <path>" `+
		"to generate an example config file,\n"+
		"by default marketbrief uses \"marketbrief.yml\" in current directory or $HOME as config file")
	var exampleConfigFile string
	fs.StringVar(&exampleConfigFile, "example-config-file", "",
		"Generate example config file to the specified file path, by default it outputs to stdout")
	fs.Lookup("example-config-file").NoOptDefVal = "-"

	fs.StringSliceP("show", "s", SupportedColumns(), "Only show comma-separated columns")
	fs.StringP("proxy", "p", "", "Proxy used when sending HTTP request \n(eg. "+
		"\"http://localhost:7777\", \"https://localhost:7777\", \"socks5://localhost:1080\")")
	fs.IntP("timeout", "t", 20, "HTTP request timeout in seconds")
	fs.Duration("lookup-timeout", 10*time.Second, "Upper bound for a single symbol lookup")
	fs.Float64("rate-limit", 0, "Maximum upstream lookups per second, 0 disables limiting")
	fs.Int("rate-burst", 5, "Burst allowed above --rate-limit")
	fs.Bool("serve", false, "Serve the HTTP API instead of the terminal dashboard")
	fs.String("listen", ":3000", "Address the HTTP API listens on")
	fs.Bool("report", false, "Generate an AI market report and exit")
	fs.String("report-output", "", "Also write the generated report as markdown to this file")
	fs.Bool("once", false, "Render the dashboard once and exit")
	fs.String("style", "dark", "Glamour style used to render reports in the terminal")
	fs.String("log-file", "", "Also write JSON logs to this file, rotated by size")
	fs.SortFlags = false
	if interactive {
		fs.Usage = func() { showUsageAndExit(fs) }
	}
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	if interactive {
		if *showHelp {
			showUsageAndExit(fs)
		}
		if *showVersion {
			fmt.Fprintf(os.Stderr, "Version %s", Version)
			if Rev != "" {
				fmt.Fprintf(os.Stderr, ", build %s", Rev)
			}
			fmt.Fprintln(os.Stderr)
			os.Exit(0)
		}
		if exampleConfigFile != "" {
			writeExampleConfig(exampleConfigFile)
			os.Exit(0)
		}
	}

	// Secrets usually live in .env, a missing file is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("marketbrief") // name of config file (without extension)
	v.AddConfigPath(".")           // path to look for the config file in
	v.AddConfigPath("$HOME")       // optionally look for config in the HOME directory
	v.AddConfigPath("/etc")        // and /etc
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			logrus.Debugln("No config file found, using defaults")
		default:
			logrus.Warnf("Error reading config file: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "decode %q", v.ConfigFileUsed())
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	if fs.NArg() != 0 {
		// command-line symbols take precedence over the configured portfolio
		cfg.Portfolio = parseHoldingsFromCLI(fs.Args())
	} else {
		cfg.watcher = v
	}
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.Debugln("Using config file:", v.ConfigFileUsed())
	return &cfg, nil
}

// WatchPortfolio calls fn with the new holdings each time the portfolio in
// the config file changes on disk. It reports false when there is nothing to
// watch: no config file was read, or the symbols came from the command line.
func (c *Config) WatchPortfolio(fn func([]Holding)) bool {
	if c.watcher == nil || c.watcher.ConfigFileUsed() == "" {
		return false
	}
	last := slices.Clone(c.Portfolio)
	c.watcher.OnConfigChange(func(e fsnotify.Event) {
		// editors may truncate before writing, keep the watchlist meanwhile
		if !c.watcher.InConfig("portfolio") {
			logrus.Debugf("No portfolio in %s, keeping the current one", e.Name)
			return
		}
		var holdings []Holding
		if err := c.watcher.UnmarshalKey("portfolio", &holdings); err != nil {
			logrus.Warnf("Ignoring portfolio change in %s, error: %v", e.Name, err)
			return
		}
		if slices.Equal(holdings, last) {
			return
		}
		last = holdings
		logrus.Infof("Portfolio reloaded from %s, %d holdings", e.Name, len(holdings))
		fn(slices.Clone(holdings))
	})
	c.watcher.WatchConfig()
	return true
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("overview", DefaultOverview())
	v.SetDefault("portfolio", DefaultPortfolio())
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-pro")
	v.SetDefault("gemini.temperature", 0.7)
}

// flag name -> config key, where they differ
var flagKeys = map[string]string{
	"lookup-timeout": "lookup_timeout",
	"rate-limit":     "rate_limit",
	"rate-burst":     "rate_burst",
	"report-output":  "report_output",
	"log-file":       "log_file",
	"list-providers": "list_providers",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if k, ok := flagKeys[key]; ok {
			key = k
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = errors.Wrapf(bindErr, "bind flag %s", f.Name)
		}
	})
	return err
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return val
		}
	}
	return ""
}

func showUsageAndExit(fs *pflag.FlagSet) {
	// Print usage message and exit
	fmt.Fprintf(os.Stderr, "\nUsage: %s [Options] [Symbol1[:Weight] Symbol2[:Weight] ...]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "\nTrack your watchlist and generate AI market briefs from the terminal")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	fs.PrintDefaults()
	fmt.Fprintln(os.Stderr, "\nSpace-separated symbols:")
	fmt.Fprintln(os.Stderr, "  Exchange-suffixed tickers as the provider spells them (eg. \"^GSPC 8058.T GC=F\")."+
		" Optionally append a relative weight after a colon (eg. \"GC=F:12.5\").")
	os.Exit(0)
}

func writeExampleConfig(fpath string) {
	fout, err := os.Stdout, error(nil)
	if fpath != "-" {
		if _, err := os.Stat(fpath); err == nil {
			logrus.Warnf("%s already exists, skipping", fpath)
			return
		}
		if fout, err = os.Create(fpath); err != nil {
			logrus.Errorf("Failed to create config file %s, error: %v", fpath, err)
			return
		}
		defer fout.Close()
	}
	if _, err := fout.WriteString(exampleConfig); err != nil {
		logrus.Errorf("Failed to write config file %s, error: %v", fpath, err)
	} else if fout != os.Stdout {
		logrus.Infof("Write example config file to %s", fpath)
	}
}

// CLI format symbol[:weight] - weight defaults to 1
func parseHoldingsFromCLI(cliArgs []string) []Holding {
	holdings := make([]Holding, 0, len(cliArgs))
	for _, arg := range cliArgs {
		symbol, weight := arg, 1.0
		if i := strings.LastIndex(arg, ":"); i > 0 {
			var w float64
			if _, err := fmt.Sscanf(arg[i+1:], "%g", &w); err == nil && w > 0 {
				symbol, weight = arg[:i], w
			} else {
				logrus.Warnf("Unrecognized weight in %q, expecting {symbol}:{weight}", arg)
			}
		}
		holdings = append(holdings, Holding{Symbol: symbol, Name: symbol, Weight: weight})
	}
	return holdings
}
