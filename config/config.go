package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/teknomedia/sited/feed"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrMissing is wrapped by CheckConfig for every required key that is empty.
var ErrMissing = errors.New("config needs")

const (
	DefaultListenAddr  = "127.0.0.1:8080"
	DefaultTimeout     = 10 * time.Second
	DefaultCacheTTL    = 10 * time.Minute
	DefaultConcurrency = 8
	DefaultLanguage    = "id"
)

type MetaConfig struct {
	Version         string                 `json:"-" yaml:"-"`
	ListenAddr      string                 `json:"listen" yaml:"listen"`
	SiteName        string                 `json:"sitename" yaml:"sitename"`
	SiteURL         string                 `json:"siteurl" yaml:"siteurl"`
	DevelopmentMode bool                   `json:"devmode" yaml:"devmode"`
	CopyrightName   string                 `json:"copyright-name" yaml:"copyright-name"`
	Language        string                 `json:"language" yaml:"language"`
	TemplateData    map[string]interface{} `json:"templatedata" yaml:"templatedata"`
	PathTemplates   string                 `json:"templatedir" yaml:"templatedir"` // empty: embedded templates
	PathPublic      string                 `json:"publicdir" yaml:"publicdir"`     // empty: embedded assets
	PathContent     string                 `json:"content" yaml:"content"`         // empty: embedded content
}

type Config struct {
	Meta           MetaConfig      `json:"Meta,omitempty" yaml:"Meta,omitempty"`
	Sec            SecurityConfig  `json:"Security,omitempty" yaml:"Security,omitempty"`
	Blog           BlogConfig      `json:"Blog,omitempty" yaml:"Blog,omitempty"`
	Contact        ContactConfig   `json:"Contact,omitempty" yaml:"Contact,omitempty"`
	Cache          CacheConfig     `json:"Cache,omitempty" yaml:"Cache,omitempty"`
	Telemetry      TelemetryConfig `json:"Telemetry,omitempty" yaml:"Telemetry,omitempty"`
	ConfigFilePath string          `json:"-" yaml:"-"` // empty if stdin ($PWD used)
}

type SecurityConfig struct {
	HashKey     string `json:"hash-key" yaml:"hash-key"`
	BlockKey    string `json:"block-key" yaml:"block-key"`
	CSRFKey     string `json:"csrf-key" yaml:"csrf-key"`
	CookieName  string `json:"cookie-name" yaml:"cookie-name"`
	Whitelist   string `json:"whitelist" yaml:"whitelist"`
	Blacklist   string `json:"blacklist" yaml:"blacklist"`
	ServePublic bool   `json:"servepublic" yaml:"servepublic"`   // Serve All Unhandled URL in publicdir
	GreylistAll bool   `json:"greylist-all" yaml:"greylist-all"` // blocked IPs can't GET either
	BoltDB      string `json:"database" yaml:"database"`
}

// BlogConfig lists the feeds merged into the news section.
// Sources are Blogger blog roots, RSS holds plain RSS/Atom feed URLs.
type BlogConfig struct {
	Sources     []string `json:"sources" yaml:"sources"`
	RSS         []string `json:"rss" yaml:"rss"`
	MaxResults  int      `json:"max-results" yaml:"max-results"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
	Retries     uint     `json:"retries" yaml:"retries"`
	CacheTTL    Duration `json:"cache-ttl" yaml:"cache-ttl"`
	Concurrency int      `json:"concurrency" yaml:"concurrency"`
	JSONP       bool     `json:"jsonp" yaml:"jsonp"` // request alt=json-in-script and unwrap the callback
}

type ContactConfig struct {
	Delay    Duration `json:"delay" yaml:"delay"`
	Honeypot string   `json:"honeypot" yaml:"honeypot"`
}

// CacheConfig selects where the last good feed result is kept.
// An empty Redis URL keeps it in the bolt database.
type CacheConfig struct {
	Redis  string `json:"redis" yaml:"redis"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp-endpoint" yaml:"otlp-endpoint"`
}

// Env holds the environment overrides. Unset variables leave the file values alone.
type Env struct {
	Port         string   `env:"PORT"`
	SiteURL      string   `env:"SITEURL"`
	DevMode      bool     `env:"DEVMODE"`
	BlogURLs     []string `env:"BLOG_URLS" envSeparator:","`
	RSSURLs      []string `env:"RSS_URLS" envSeparator:","`
	MaxResults   string   `env:"MAX_RESULTS_PER_BLOG"`
	RedisURL     string   `env:"REDIS_URL"`
	OTLPEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CSRFKey      string   `env:"CSRF_KEY"`
	HashKey      string   `env:"HASH_KEY"`
	BlockKey     string   `env:"BLOCK_KEY"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads a JSON or YAML config file. A path of "-" reads JSON from stdin.
func Load(path string, stdin io.Reader) (*Config, error) {
	cfg := new(Config)
	if path == "-" {
		if err := Decode(stdin, "json", cfg); err != nil {
			return nil, fmt.Errorf("error decoding config from stdin: %w", err)
		}
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()
	if err := Decode(f, formatOf(path), cfg); err != nil {
		return nil, fmt.Errorf("error decoding config %q: %w", path, err)
	}
	cfg.ConfigFilePath = path
	return cfg, nil
}

// Decode reads config in the given format ("json" or "yaml") into cfg.
func Decode(r io.Reader, format string, cfg *Config) error {
	switch format {
	case "yaml":
		err := yaml.NewDecoder(r).Decode(cfg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	default:
		return json.NewDecoder(r).Decode(cfg)
	}
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config, lg *zap.SugaredLogger) error {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return err
	}
	if e.Port != "" {
		lg.Infow("overriding listen address with $PORT", "port", e.Port)
		cfg.Meta.ListenAddr = ":" + e.Port
	}
	if e.SiteURL != "" {
		lg.Infow("overriding site url with $SITEURL", "siteurl", e.SiteURL)
		cfg.Meta.SiteURL = e.SiteURL
	}
	if e.DevMode {
		cfg.Meta.DevelopmentMode = true
	}
	if len(e.BlogURLs) > 0 {
		cfg.Blog.Sources = e.BlogURLs
	}
	if len(e.RSSURLs) > 0 {
		cfg.Blog.RSS = e.RSSURLs
	}
	if e.MaxResults != "" {
		cfg.Blog.MaxResults = feed.ParseMaxResults(e.MaxResults)
	}
	if e.RedisURL != "" {
		cfg.Cache.Redis = e.RedisURL
	}
	if e.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = e.OTLPEndpoint
	}
	if e.CSRFKey != "" {
		cfg.Sec.CSRFKey = e.CSRFKey
	}
	if e.HashKey != "" {
		cfg.Sec.HashKey = e.HashKey
	}
	if e.BlockKey != "" {
		cfg.Sec.BlockKey = e.BlockKey
	}
	return nil
}

// CheckConfig fills defaults, resolves relative paths against the config
// file directory and verifies the required keys.
func CheckConfig(config *Config, lg *zap.SugaredLogger) error {
	if config.Meta.Version == "" {
		config.Meta.Version = "sited"
	}
	if config.Meta.ListenAddr == "" {
		config.Meta.ListenAddr = DefaultListenAddr
	}
	if config.Meta.Language == "" {
		config.Meta.Language = DefaultLanguage
	}
	if config.Sec.BoltDB == "" {
		config.Sec.BoltDB = "sited.db"
	}
	config.Blog.MaxResults = feed.ClampMaxResults(config.Blog.MaxResults)
	if config.Blog.Timeout == 0 {
		config.Blog.Timeout = Duration(DefaultTimeout)
	}
	if config.Blog.CacheTTL == 0 {
		config.Blog.CacheTTL = Duration(DefaultCacheTTL)
	}
	if config.Blog.Concurrency <= 0 {
		config.Blog.Concurrency = DefaultConcurrency
	}
	if config.Contact.Honeypot == "" {
		config.Contact.Honeypot = "website"
	}
	if config.Cache.Prefix == "" {
		config.Cache.Prefix = "sited:"
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	if config.ConfigFilePath != "" {
		dir, err = filepath.Abs(filepath.Dir(config.ConfigFilePath))
		if err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
	}
	for _, p := range []*string{&config.Meta.PathPublic, &config.Meta.PathTemplates, &config.Meta.PathContent} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		*p = filepath.Join(dir, *p)
	}
	for _, dirname := range []string{config.Meta.PathPublic, config.Meta.PathTemplates} {
		if dirname == "" {
			continue
		}
		s, err := os.Stat(dirname)
		if err != nil {
			return err
		}
		if !s.IsDir() {
			return fmt.Errorf("is not a dir: %v", dirname)
		}
	}

	if config.Meta.SiteURL == "" {
		return fmt.Errorf("%w Meta.siteurl", ErrMissing)
	}
	if config.Sec.CookieName == "" {
		config.Sec.CookieName = "sited"
	}
	for name, key := range map[string]*string{
		"Security.hash-key":  &config.Sec.HashKey,
		"Security.block-key": &config.Sec.BlockKey,
		"Security.csrf-key":  &config.Sec.CSRFKey,
	} {
		if *key != "" {
			continue
		}
		if !config.Meta.DevelopmentMode {
			return fmt.Errorf("%w %s", ErrMissing, name)
		}
		lg.Warnw("generating ephemeral key for dev mode", "key", name)
		*key = randomKey()
	}
	return nil
}

// randomKey returns 16 random bytes hex encoded: a 32 byte key string,
// valid for securecookie's AES block key and for csrf.
func randomKey() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Duration is a time.Duration that reads and writes as "10s" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}
