package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
)

// Duration decodes TOML strings such as "30s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type LogConfig struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

type CrawlConfig struct {
	WorkDir    string `toml:"work_dir"`
	RunLimit   int    `toml:"run_limit"`
	FlushEvery int    `toml:"flush_every"`
	LogEvery   int    `toml:"log_every"`
	MaxDist    int    `toml:"max_dist"`
}

type ScopusConfig struct {
	APIKey            string   `toml:"api_key"`
	BaseURL           string   `toml:"base_url"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           Duration `toml:"timeout"`
	MaxElapsed        Duration `toml:"max_elapsed"`
	PageSize          int      `toml:"page_size"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type Config struct {
	Log      LogConfig      `toml:"log"`
	Crawl    CrawlConfig    `toml:"crawl"`
	Scopus   ScopusConfig   `toml:"scopus"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	Server   ServerConfig   `toml:"server"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Format: "text", Level: "info"},
		Crawl: CrawlConfig{
			WorkDir:    ".",
			RunLimit:   1000,
			FlushEvery: 1000,
			LogEvery:   100,
			MaxDist:    1,
		},
		Scopus: ScopusConfig{
			BaseURL:           "https://api.elsevier.com",
			RequestsPerSecond: 3,
			Timeout:           Duration{30 * time.Second},
			MaxElapsed:        Duration{2 * time.Minute},
			PageSize:          25,
		},
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		Server:   ServerConfig{Listen: ":8080"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SCOPUS_API_KEY"); v != "" {
		c.Scopus.APIKey = v
	}
	if v := os.Getenv("SCOPUS_BASE_URL"); v != "" {
		c.Scopus.BaseURL = v
	}
	if v := os.Getenv("SNOWBALL_WORKDIR"); v != "" {
		c.Crawl.WorkDir = v
	}
	if v := os.Getenv("SNOWBALL_MAX_DIST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SNOWBALL_MAX_DIST: %w", err)
		}
		c.Crawl.MaxDist = n
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.Crawl.RunLimit <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("crawl.run_limit must be positive, got %d", c.Crawl.RunLimit))
	}
	if c.Crawl.FlushEvery <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("crawl.flush_every must be positive, got %d", c.Crawl.FlushEvery))
	}
	if c.Crawl.MaxDist < 0 {
		errs = multierror.Append(errs, fmt.Errorf("crawl.max_dist must not be negative, got %d", c.Crawl.MaxDist))
	}
	if c.Scopus.RequestsPerSecond <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("scopus.requests_per_second must be positive, got %v", c.Scopus.RequestsPerSecond))
	}
	if c.Scopus.PageSize <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("scopus.page_size must be positive, got %d", c.Scopus.PageSize))
	}
	return errs.ErrorOrNil()
}
