package config

import (
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "TARIFF_INTEL_CONFIG"
	outputPathEnv     = "TARIFF_INTEL_OUTPUT"
	logLevelEnv       = "TARIFF_INTEL_LOG_LEVEL"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	dotenvFile        = ".env"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Output        OutputConfig       `yaml:"output"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Relevance     RelevanceConfig    `yaml:"relevance"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Server        ServerConfig       `yaml:"server"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig selects level and handler format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OutputConfig points at the artifact consumed by the display layer.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// FetchConfig bounds network work per request and per run.
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	RunTimeout  time.Duration `yaml:"runTimeout"`
	UserAgent   string        `yaml:"userAgent"`
	Retries     int           `yaml:"retries"`
	Concurrency int           `yaml:"concurrency"`
}

// RelevanceConfig holds the global keyword list.
type RelevanceConfig struct {
	Keywords []string `yaml:"keywords"`
}

// DedupConfig caps how many items each source carries across runs.
type DedupConfig struct {
	Retention int `yaml:"retention"`
}

// DatabaseConfig describes the optional Postgres seen-store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines how often the aggregation loop runs.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SiteConfig describes a single upstream source with its scanner strategy.
type SiteConfig struct {
	Key                string            `yaml:"key"`
	Group              string            `yaml:"group"`
	Scanner            string            `yaml:"scanner"`
	Source             string            `yaml:"source"`
	URL                string            `yaml:"url"`
	Terms              []string          `yaml:"terms"`
	DateGTE            string            `yaml:"dateGte"`
	MaxItems           int               `yaml:"maxItems"`
	Prefiltered        bool              `yaml:"prefiltered"`
	FallbackUnfiltered bool              `yaml:"fallbackUnfiltered"`
	ExtraKeywords      []string          `yaml:"extraKeywords"`
	Selector           string            `yaml:"selector"`
	Markers            []string          `yaml:"markers"`
	Title              string            `yaml:"title"`
	FallbackSummary    string            `yaml:"fallbackSummary"`
	Options            map[string]string `yaml:"options"`
}

// Load reads .env and the YAML file named by TARIFF_INTEL_CONFIG (if
// present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(dotenvFile); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load %s: %v", dotenvFile, err)
	}
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom merges the YAML file at path (may be empty) over the defaults
// and applies environment overrides.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

// unsetRetries marks a document that leaves fetch.retries out, so that an
// explicit 0 can still disable retries.
const unsetRetries = -1

// Parse decodes a YAML document into a Config without defaults. A missing
// fetch.retries decodes as -1.
func Parse(raw []byte) (Config, error) {
	fileCfg := Config{Fetch: FetchConfig{Retries: unsetRetries}}
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	return fileCfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := defaultConfig()
	cfg.bindTimezone()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(outputPathEnv); v != "" {
		c.Output.Path = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Output.Path != "" {
		base.Output.Path = override.Output.Path
	}

	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.RunTimeout > 0 {
		base.Fetch.RunTimeout = override.Fetch.RunTimeout
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}
	if override.Fetch.Retries > unsetRetries {
		base.Fetch.Retries = override.Fetch.Retries
	}
	if override.Fetch.Concurrency > 0 {
		base.Fetch.Concurrency = override.Fetch.Concurrency
	}

	if len(override.Relevance.Keywords) > 0 {
		base.Relevance.Keywords = override.Relevance.Keywords
	}

	if override.Dedup.Retention > 0 {
		base.Dedup.Retention = override.Dedup.Retention
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

// DefaultKeywords is the relevance keyword list used when none is configured.
func DefaultKeywords() []string {
	return []string{
		"tariff",
		"tariffs",
		"duty",
		"duties",
		"countermeasure",
		"countermeasures",
		"retaliat",
		"section 232",
		"section 301",
		"ieepa",
		"customs",
		"trade",
		"import",
		"export",
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Output:  OutputConfig{Path: "data/live_intel.json"},
		Fetch: FetchConfig{
			Timeout:     25 * time.Second,
			RunTimeout:  3 * time.Minute,
			UserAgent:   "TariffIntelBot/1.0",
			Retries:     1,
			Concurrency: 4,
		},
		Relevance: RelevanceConfig{Keywords: DefaultKeywords()},
		Dedup:     DedupConfig{Retention: 200},
		Scheduler: SchedulerConfig{Interval: 6 * time.Hour, Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Addr: ":8080"},
		Sites: []SiteConfig{
			{
				Key:      "federal_register",
				Scanner:  "federal_register",
				Source:   "Federal Register API",
				URL:      "https://www.federalregister.gov/api/v1/documents.json",
				Terms:    []string{"tariff", "duty", "section 232", "reciprocal tariff", "de minimis"},
				DateGTE:  "2025-01-01",
				MaxItems: 80,
			},
			{
				Key:      "cbp_csms",
				Scanner:  "rss",
				Source:   "U.S. Customs and Border Protection CSMS (GovDelivery RSS)",
				URL:      "https://content.govdelivery.com/accounts/USDHSCBP/widgets/USDHSCBP_WIDGET_2.rss",
				MaxItems: 40,
			},
			{
				Key:                "eu_commission",
				Group:              "retaliation",
				Scanner:            "rss",
				Source:             "European Commission Press Corner RSS",
				URL:                "https://ec.europa.eu/commission/presscorner/api/rss?language=en",
				MaxItems:           25,
				FallbackUnfiltered: true,
			},
			{
				Key:      "uk_dbt",
				Group:    "retaliation",
				Scanner:  "atom",
				Source:   "UK GOV.UK DBT news Atom feed",
				URL:      "https://www.gov.uk/search/news-and-communications.atom?keywords=tariff%20duty%20trade&organisations%5B%5D=department-for-business-and-trade",
				MaxItems: 25,
			},
			{
				Key:                "china_mofcom",
				Group:              "retaliation",
				Scanner:            "html_links",
				Source:             "MOFCOM English website",
				URL:                "https://english.mofcom.gov.cn/",
				Selector:           `a[href*="/News/SpokesmansRemarks/"][title]`,
				MaxItems:           25,
				ExtraKeywords:      []string{"spokesperson"},
				FallbackUnfiltered: true,
			},
			{
				Key:         "canada_finance",
				Group:       "retaliation",
				Scanner:     "html_page",
				Source:      "Government of Canada Department of Finance",
				URL:         "https://www.canada.ca/en/department-finance/programs/international-trade-finance-policy/canadas-response-us-tariffs.html",
				MaxItems:    1,
				Prefiltered: true,
				Title:       "Canada's response to U.S. tariffs (policy page)",
				Markers: []string{
					"Countermeasures in response to U.S. tariffs",
					"counter tariffs on steel, aluminum and automobiles remain",
					"removed counter tariffs",
					"25 per cent tariffs",
				},
				FallbackSummary: "Official policy page for Canada's tariff response.",
			},
		},
	}
}
