package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration loaded from the environment,
// an optional .env file and an optional scraper.yaml.
type Config struct {
	StoreDriver string `mapstructure:"store_driver"`

	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     string `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	SQLitePath string `mapstructure:"sqlite_path"`

	Headless            bool   `mapstructure:"headless"`
	ChromeBin           string `mapstructure:"chrome_bin"`
	BrowserSearchURL    string `mapstructure:"browser_search_url"`
	NavigationTimeoutMs int    `mapstructure:"navigation_timeout_ms"`
	ScrollRounds        int    `mapstructure:"scroll_rounds"`
	ScrollDeltaPx       int    `mapstructure:"scroll_delta_px"`
	ScrollPauseMinMs    int    `mapstructure:"scroll_pause_min_ms"`
	ScrollPauseMaxMs    int    `mapstructure:"scroll_pause_max_ms"`

	MaxRetries       int `mapstructure:"max_retries"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	SearchAPIKey string `mapstructure:"search_api_key"`
	SearchAPIURL string `mapstructure:"search_api_url"`

	AIAPIKey   string `mapstructure:"ai_api_key"`
	AIAPIURL   string `mapstructure:"ai_api_url"`
	AIClassify bool   `mapstructure:"ai_classify"`

	GeocoderURL       string `mapstructure:"geocoder_url"`
	GeocoderUserAgent string `mapstructure:"geocoder_user_agent"`
	GeocoderEmail     string `mapstructure:"geocoder_email"`
	VerifyEmailMX     bool   `mapstructure:"verify_email_mx"`

	SearchTerm        string   `mapstructure:"search_term"`
	Location          string   `mapstructure:"location"`
	Sources           []string `mapstructure:"sources"`
	MaxResults        int      `mapstructure:"max_results"`
	CategoryKey       string   `mapstructure:"category_key"`
	BatchSize         int      `mapstructure:"batch_size"`
	BatchPauseMs      int      `mapstructure:"batch_pause_ms"`
	SourceConcurrency int      `mapstructure:"source_concurrency"`

	CSVOutputPath string `mapstructure:"csv_output_path"`
	LogDebug      bool   `mapstructure:"log_debug"`
}

// Load reads the .env file, an optional scraper.yaml and the environment,
// and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	v.SetConfigName("scraper")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Sources = splitList(cfg.Sources)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_driver", DriverPostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "scraper")
	v.SetDefault("postgres_password", "scraper123")
	v.SetDefault("postgres_db", "listings_db")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("sqlite_path", "./output/listings.db")

	v.SetDefault("headless", true)
	v.SetDefault("chrome_bin", "")
	v.SetDefault("browser_search_url", "https://www.google.com/maps/search/%s")
	v.SetDefault("navigation_timeout_ms", 60000)
	v.SetDefault("scroll_rounds", 10)
	v.SetDefault("scroll_delta_px", 800)
	v.SetDefault("scroll_pause_min_ms", 800)
	v.SetDefault("scroll_pause_max_ms", 2000)

	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_base_delay_ms", 2000)

	v.SetDefault("requests_per_second", 1.0)

	v.SetDefault("search_api_key", "")
	v.SetDefault("search_api_url", "https://google.serper.dev/places")

	v.SetDefault("ai_api_key", "")
	v.SetDefault("ai_api_url", "")
	v.SetDefault("ai_classify", false)

	v.SetDefault("geocoder_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocoder_user_agent", "repairshop-scraper/1.0")
	v.SetDefault("geocoder_email", "")
	v.SetDefault("verify_email_mx", false)

	v.SetDefault("search_term", "réparation téléphone")
	v.SetDefault("location", "Paris")
	v.SetDefault("sources", []string{"browser"})
	v.SetDefault("max_results", 50)
	v.SetDefault("category_key", "")
	v.SetDefault("batch_size", 25)
	v.SetDefault("batch_pause_ms", 500)
	v.SetDefault("source_concurrency", 1)

	v.SetDefault("csv_output_path", "")
	v.SetDefault("log_debug", false)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("store driver must be %q, %q or %q, got %q",
			DriverPostgres, DriverSQLite, DriverMemory, c.StoreDriver)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	for _, s := range c.Sources {
		switch s {
		case "browser", "search_api", "ai":
		default:
			return fmt.Errorf("unknown source %q", s)
		}
	}
	if c.ScrollPauseMaxMs < c.ScrollPauseMinMs {
		return fmt.Errorf("scroll pause max (%dms) below min (%dms)", c.ScrollPauseMaxMs, c.ScrollPauseMinMs)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// NavigationTimeout returns the per-navigation budget.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// RetryBaseDelay returns the first backoff step.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// BatchPause returns the pause between persistence batches.
func (c *Config) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMs) * time.Millisecond
}

// splitList accepts both ["a","b"] and ["a,b"] forms.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
