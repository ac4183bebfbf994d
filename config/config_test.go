package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const yamlConfig = `
Meta:
  siteurl: https://teknomedia.example
  sitename: Teknomedia
  publicdir: public
Security:
  hash-key: 0123456789abcdef0123456789abcdef
  block-key: 0123456789abcdef0123456789abcdef
  csrf-key: 0123456789abcdef0123456789abcdef
Blog:
  sources:
    - https://a.blogspot.com
  max-results: 20
  timeout: 3s
  jsonp: true
Contact:
  delay: 1500ms
`

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "public"), 0700))
	p := filepath.Join(dir, "sited.yaml")
	require.NoError(t, os.WriteFile(p, []byte(yamlConfig), 0600))

	cfg, err := Load(p, nil)
	require.NoError(t, err)
	assert.Equal(t, p, cfg.ConfigFilePath)
	assert.Equal(t, []string{"https://a.blogspot.com"}, cfg.Blog.Sources)
	assert.Equal(t, 3*time.Second, cfg.Blog.Timeout.Std())
	assert.Equal(t, 1500*time.Millisecond, cfg.Contact.Delay.Std())
	assert.True(t, cfg.Blog.JSONP)

	require.NoError(t, CheckConfig(cfg, zaptest.NewLogger(t).Sugar()))
	assert.Equal(t, filepath.Join(dir, "public"), cfg.Meta.PathPublic)
	assert.Equal(t, DefaultListenAddr, cfg.Meta.ListenAddr)
	assert.Equal(t, 20, cfg.Blog.MaxResults)
	assert.Equal(t, DefaultCacheTTL, cfg.Blog.CacheTTL.Std())
	assert.Equal(t, "website", cfg.Contact.Honeypot)
	assert.Equal(t, "sited", cfg.Sec.CookieName)
}

func TestLoadJSONFromStdin(t *testing.T) {
	in := strings.NewReader(`{"Meta":{"siteurl":"http://localhost","devmode":true},"Blog":{"max-results":500,"cache-ttl":"1m"}}`)
	cfg, err := Load("-", in)
	require.NoError(t, err)
	assert.Empty(t, cfg.ConfigFilePath)
	assert.Equal(t, time.Minute, cfg.Blog.CacheTTL.Std())

	require.NoError(t, CheckConfig(cfg, zaptest.NewLogger(t).Sugar()))
	assert.Equal(t, 50, cfg.Blog.MaxResults)
	// dev mode generates the missing keys
	assert.Len(t, cfg.Sec.HashKey, 32)
	assert.Len(t, cfg.Sec.BlockKey, 32)
	assert.NotEqual(t, cfg.Sec.HashKey, cfg.Sec.BlockKey)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)

	_, err = Load("-", strings.NewReader(`{"Blog":{"timeout":"soon"}}`))
	assert.ErrorContains(t, err, "bad duration")
}

func TestCheckConfigMissing(t *testing.T) {
	lg := zaptest.NewLogger(t).Sugar()

	cfg := &Config{}
	err := CheckConfig(cfg, lg)
	assert.ErrorIs(t, err, ErrMissing)
	assert.ErrorContains(t, err, "Meta.siteurl")

	cfg = &Config{Meta: MetaConfig{SiteURL: "https://x.example"}}
	cfg.Sec.HashKey = "k"
	cfg.Sec.BlockKey = "k"
	err = CheckConfig(cfg, lg)
	assert.ErrorIs(t, err, ErrMissing)
	assert.ErrorContains(t, err, "Security.csrf-key")

	cfg = &Config{Meta: MetaConfig{SiteURL: "https://x.example", PathTemplates: filepath.Join(t.TempDir(), "nope")}}
	assert.Error(t, CheckConfig(cfg, lg))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SITEURL", "https://env.example")
	t.Setenv("BLOG_URLS", "https://a.blogspot.com,https://b.blogspot.com")
	t.Setenv("MAX_RESULTS_PER_BLOG", "abc")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := &Config{}
	cfg.Blog.MaxResults = 5
	require.NoError(t, ApplyEnv(cfg, zaptest.NewLogger(t).Sugar()))
	assert.Equal(t, ":9000", cfg.Meta.ListenAddr)
	assert.Equal(t, "https://env.example", cfg.Meta.SiteURL)
	assert.Len(t, cfg.Blog.Sources, 2)
	assert.Equal(t, 50, cfg.Blog.MaxResults)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.Redis)
}

func TestApplyEnvBadBool(t *testing.T) {
	t.Setenv("DEVMODE", "maybe")
	err := ApplyEnv(&Config{}, zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "parse env")
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Std())
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	require.NoError(t, d.UnmarshalText(nil))
	assert.Zero(t, d)
}
