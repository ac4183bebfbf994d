package system

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/crewjam/csp"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
	"github.com/teknomedia/sited/config"
	"github.com/teknomedia/sited/contact"
	"github.com/teknomedia/sited/content"
	"github.com/teknomedia/sited/feed"
	"github.com/teknomedia/sited/greylist"
	"github.com/teknomedia/sited/i18n"
	"github.com/teknomedia/sited/www"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/text/language"
)

// pages are the templates parsed from the template dir, each with every
// file in _partials/.
var pages = []string{"index.html", "contact.html", "login.html", "dashboard.html", "404.html"}

type System struct {
	Stats Stats

	config    atomic.Pointer[config.Config]
	templates atomic.Pointer[map[string]*template.Template]
	site      atomic.Pointer[content.Site]
	lang      atomic.Value // language.Tag

	root     *zap.SugaredLogger
	log      *zap.SugaredLogger
	audit    *zap.SugaredLogger
	db       *bolt.DB
	redis    *redis.Client
	cookies  *securecookie.SecureCookie
	csp      string
	templFS  fs.FS
	publicFS fs.FS
	feeds    *feed.Cache
	contacts *contact.Store
	greylist *greylist.List
}

// New checks nothing itself; cfg must have passed config.CheckConfig.
// It opens the database, parses templates and content, and warms the feed
// cache from the last persisted result.
func New(cfg *config.Config, lg *zap.SugaredLogger) (*System, error) {
	t1 := time.Now()
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	var hashKey = []byte(cfg.Sec.HashKey)
	var blockKey = []byte(cfg.Sec.BlockKey)
	if cfg.Meta.DevelopmentMode {
		blockKey = nil // not encrypted cookies
	}
	s := &System{
		Stats:    Stats{t1: t1},
		root:     lg,
		log:      lg.Named("system"),
		audit:    lg.Named("audit"),
		cookies:  securecookie.New(hashKey, blockKey),
		templFS:  www.Templates(),
		publicFS: www.Public(),
	}
	s.config.Store(cfg)
	s.lang.Store(i18n.Parse(cfg.Meta.Language))
	if cfg.Meta.PathTemplates != "" {
		s.templFS = os.DirFS(cfg.Meta.PathTemplates)
	}
	if cfg.Meta.PathPublic != "" {
		s.publicFS = os.DirFS(cfg.Meta.PathPublic)
	}
	s.csp = cspHeader()

	if err := s.ReloadTemplates(); err != nil {
		return nil, err
	}
	if err := s.ReloadContent(); err != nil {
		return nil, err
	}
	if err := s.InitDB(); err != nil {
		return nil, err
	}
	contacts, err := contact.NewStore(s.db)
	if err != nil {
		s.db.Close()
		return nil, err
	}
	s.contacts = contacts

	var store feed.Store
	if cfg.Cache.Redis != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := feed.ConnectRedis(ctx, cfg.Cache.Redis)
		cancel()
		if err != nil {
			s.db.Close()
			return nil, err
		}
		s.redis = client
		store = feed.NewRedisStore(client, cfg.Cache.Prefix)
		s.log.Infow("keeping feed cache in redis", "prefix", cfg.Cache.Prefix)
	} else {
		bs, err := feed.NewBoltStore(s.db)
		if err != nil {
			s.db.Close()
			return nil, err
		}
		store = bs
	}
	s.feeds = feed.NewCache(s.aggregator(cfg), cfg.Blog.CacheTTL.Std(), store, lg.Named("feedcache"))
	if err := s.feeds.Warm(context.Background()); err != nil {
		s.log.Warnw("error loading persisted feed result", "err", err)
	}

	// temporary bans are short in dev mode
	var refreshRate time.Duration
	banTime := 24 * time.Hour
	if cfg.Meta.DevelopmentMode {
		refreshRate = 10 * time.Second
		banTime = time.Minute
	}
	s.greylist = greylist.New(cfg.Sec.Whitelist, cfg.Sec.Blacklist, refreshRate, lg)
	s.greylist.SetTemporaryBlacklistTime(banTime)
	s.greylist.SetAllMethods(cfg.Sec.GreylistAll)

	s.log.Infow("system ready", "took", time.Since(t1), "sources", len(cfg.Blog.Sources)+len(cfg.Blog.RSS), "devmode", cfg.Meta.DevelopmentMode)
	return s, nil
}

func (s *System) aggregator(cfg *config.Config) *feed.Aggregator {
	return feed.New(feed.Options{
		Blogger:     cfg.Blog.Sources,
		RSS:         cfg.Blog.RSS,
		MaxResults:  cfg.Blog.MaxResults,
		Timeout:     cfg.Blog.Timeout.Std(),
		Retries:     cfg.Blog.Retries,
		Concurrency: cfg.Blog.Concurrency,
		Script:      cfg.Blog.JSONP,
		Logger:      s.root.Named("feed"),
	})
}

// Config returns the current configuration.
func (s *System) Config() *config.Config {
	return s.config.Load()
}

// Feeds exposes the feed cache, for the fetch command and the refresher.
func (s *System) Feeds() *feed.Cache {
	return s.feeds
}

func (s *System) defaultLang() language.Tag {
	return s.lang.Load().(language.Tag)
}

// Close releases the database and the redis connection.
func (s *System) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// HandleSignals reloads the config on SIGUSR1 and the templates and
// content on SIGUSR2, until ctx is done.
func (s *System) HandleSignals(ctx context.Context) {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigchan)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigchan:
			s.log.Infow("got signal", "signal", sig.String())
			switch sig {
			case syscall.SIGUSR1:
				if err := s.ReloadConfig(); err != nil {
					s.log.Errorw("error reloading config", "err", err)
				}
			case syscall.SIGUSR2:
				if err := s.ReloadTemplates(); err != nil {
					s.log.Errorw("error reloading templates", "err", err)
				}
				if err := s.ReloadContent(); err != nil {
					s.log.Errorw("error reloading content", "err", err)
				}
			}
		}
	}
}

func (s *System) ReloadTemplates() error {
	t1 := time.Now()
	var templates = map[string]*template.Template{}
	partials, err := fs.Glob(s.templFS, "_partials/*.html")
	if err != nil {
		return fmt.Errorf("couldn't enumerate partial templates: %w", err)
	}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(s.templFS, append([]string{name}, partials...)...)
		if err != nil {
			return fmt.Errorf("couldn't parse template %q: %w", name, err)
		}
		templates[name] = t
	}
	s.templates.Store(&templates)
	s.log.Debugw("parsed templates", "count", len(templates), "partials", len(partials), "took", time.Since(t1))
	return nil
}

// ReloadContent re-reads the site content file (or the embedded copy).
func (s *System) ReloadContent() error {
	site, err := content.LoadFile(s.Config().Meta.PathContent)
	if err != nil {
		return fmt.Errorf("couldn't load content: %w", err)
	}
	s.site.Store(site)
	return nil
}

// ReloadConfig re-reads the config file and applies what can change while
// running: site metadata, blog sources and contact settings. The white and
// black list files are re-read from their boot paths. Keys, listen address,
// cache and database stay as they were at boot.
func (s *System) ReloadConfig() error {
	old := s.Config()
	if old.ConfigFilePath == "" {
		return fmt.Errorf("can't reload config, was set using stdin")
	}
	cfg, err := config.Load(old.ConfigFilePath, nil)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, s.log); err != nil {
		return err
	}
	cfg.Meta.DevelopmentMode = cfg.Meta.DevelopmentMode || old.Meta.DevelopmentMode
	cfg.Meta.ListenAddr = old.Meta.ListenAddr
	cfg.Sec.HashKey, cfg.Sec.BlockKey, cfg.Sec.CSRFKey = old.Sec.HashKey, old.Sec.BlockKey, old.Sec.CSRFKey
	cfg.Sec.BoltDB = old.Sec.BoltDB
	cfg.Cache = old.Cache
	if err := config.CheckConfig(cfg, s.log); err != nil {
		return err
	}
	s.config.Store(cfg)
	s.lang.Store(i18n.Parse(cfg.Meta.Language))
	s.feeds.Reset(s.aggregator(cfg))
	s.greylist.RefreshLists()
	s.log.Infow("reloaded config", "path", cfg.ConfigFilePath)
	return nil
}

// cspHeader allows remote images (post thumbnails, team photos) and the
// embedded map; everything else is same-origin.
func cspHeader() string {
	return csp.Header{
		DefaultSrc: []string{"'self'"},
		ImgSrc:     []string{"'self'", "https:", "data:"},
		FrameSrc:   []string{"https://www.google.com"},
	}.String()
}

type Stats struct {
	hits atomic.Uint64
	t1   time.Time
}

type User struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	authkey string    // temporary login accept
}

func (u User) String() string {
	return fmt.Sprintf("User {Name: %s, ID: %s, Authkey: %.6s}", u.Name, u.ID, u.authkey)
}

// hasher never writes into salt; callers pass slices of the stored record.
func hasher(in string, salt []byte) []byte {
	key := make([]byte, 0, len(salt)+len(in))
	key = append(append(key, salt...), in...)
	return argon2.IDKey(key, salt, 2, 1024, 2, 32)
}

// compareDigest compares equality of two equal-length byte slices
func compareDigest(a, b []byte) bool {
	if len(a) != len(b) || len(a) < 32 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

var ErrBadCredentials = errors.New("bad credentials")
var ErrExists = errors.New("record already exists")
var ErrNotFound = errors.New("not found")
