package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 8
	maxBodySize        = 8 << 20
	userAgent          = "sited-feed/1.0"
)

// Options configures an Aggregator.
type Options struct {
	Blogger     []string // Blogger blog roots
	RSS         []string // RSS or Atom feed URLs
	MaxResults  int
	Timeout     time.Duration // per source attempt
	Retries     uint          // extra attempts per source; 0 is a single request
	Concurrency int
	Script      bool // request json-in-script payloads with a per-source callback
	Client      *http.Client
	Logger      *zap.SugaredLogger
}

// Aggregator fetches every configured source and merges the posts.
type Aggregator struct {
	sources []Source
	max     int
	timeout time.Duration
	retries uint
	limit   int
	script  bool
	client  *http.Client
	lg      *zap.SugaredLogger
	tracer  trace.Tracer
}

func New(o Options) *Aggregator {
	a := &Aggregator{
		sources: BuildSources(o.Blogger, o.RSS),
		max:     ClampMaxResults(o.MaxResults),
		timeout: o.Timeout,
		retries: o.Retries,
		limit:   o.Concurrency,
		script:  o.Script,
		client:  o.Client,
		lg:      o.Logger,
		tracer:  otel.Tracer("github.com/teknomedia/sited/feed"),
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.limit <= 0 {
		a.limit = defaultConcurrency
	}
	if a.client == nil {
		a.client = &http.Client{}
	}
	if a.lg == nil {
		a.lg = zap.NewNop().Sugar()
	}
	return a
}

// Sources returns the normalized source list.
func (a *Aggregator) Sources() []Source { return a.sources }

// Aggregate requests all sources in parallel and waits until each one has
// answered or failed. Failures are counted, never fatal.
func (a *Aggregator) Aggregate(ctx context.Context) Result {
	ctx, span := a.tracer.Start(ctx, "feed.Aggregate",
		trace.WithAttributes(attribute.Int("feed.sources", len(a.sources))))
	defer span.End()

	res := Result{Sources: len(a.sources), Fetched: time.Now()}
	if len(a.sources) == 0 {
		span.SetStatus(codes.Error, ErrNoSources.Error())
		return res
	}
	res.Home = a.sources[0].URL

	// one slot per source keeps the merge order independent of timing
	perSource := make([][]Post, len(a.sources))
	failed := make([]bool, len(a.sources))
	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, src := range a.sources {
		g.Go(func() error {
			posts, err := a.Fetch(ctx, src)
			if err != nil {
				a.lg.Warnw("error loading feed", "source", src.URL, "kind", src.Kind, "err", err)
				failed[i] = true
				return nil
			}
			perSource[i] = posts
			return nil
		})
	}
	g.Wait()

	var all []Post
	for i := range a.sources {
		if failed[i] {
			res.Failed++
			continue
		}
		all = append(all, perSource[i]...)
	}
	res.Posts = Merge(all)
	span.SetAttributes(attribute.Int("feed.posts", len(res.Posts)), attribute.Int("feed.failed", res.Failed))
	if res.Failed > 0 {
		span.SetStatus(codes.Error, ErrSourceFailed.Error())
	}
	a.lg.Debugw("aggregated feeds", "posts", len(res.Posts), "sources", res.Sources, "failed", res.Failed)
	return res
}

// Fetch loads one source, retrying transient failures.
func (a *Aggregator) Fetch(ctx context.Context, src Source) ([]Post, error) {
	ctx, span := a.tracer.Start(ctx, "feed.Fetch", trace.WithAttributes(
		attribute.String("feed.url", src.URL),
		attribute.String("feed.kind", src.Kind.String())))
	defer span.End()

	var posts []Post
	err := retry.Do(func() error {
		actx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		var err error
		if src.Kind == RSS {
			posts, err = a.fetchRSS(actx, src)
		} else {
			posts, err = a.fetchBlogger(actx, src)
		}
		return err
	},
		retry.Context(ctx),
		retry.Attempts(a.retries+1),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for i := range posts {
		posts[i].Source = src.URL
	}
	span.SetAttributes(attribute.Int("feed.posts", len(posts)))
	return posts, nil
}

func (a *Aggregator) fetchBlogger(ctx context.Context, src Source) ([]Post, error) {
	var callback string
	if a.script {
		callback = src.CallbackName()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, FeedURL(src.URL, a.max, callback), nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	posts, err := Decode(body, callback)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	return posts, nil
}

func (a *Aggregator) fetchRSS(ctx context.Context, src Source) ([]Post, error) {
	p := gofeed.NewParser()
	p.Client = a.client
	p.UserAgent = userAgent
	f, err := p.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, err
	}
	items := f.Items
	if len(items) > a.max {
		items = items[:a.max]
	}
	posts := make([]Post, 0, len(items))
	for _, it := range items {
		posts = append(posts, fromItem(it))
	}
	return posts, nil
}

func fromItem(it *gofeed.Item) Post {
	p := Post{
		ID:      it.GUID,
		Title:   it.Title,
		URL:     it.Link,
		Content: it.Content,
		Labels:  it.Categories,
	}
	if p.ID == "" {
		p.ID = it.Link
	}
	if p.URL == "" {
		p.URL = "#"
	}
	if p.Content == "" {
		p.Content = it.Description
	}
	if it.Image != nil {
		p.Image = it.Image.URL
	}
	switch {
	case len(it.Authors) > 0 && it.Authors[0] != nil:
		p.Author = it.Authors[0].Name
	case it.Author != nil:
		p.Author = it.Author.Name
	}
	switch {
	case it.PublishedParsed != nil:
		p.Published = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		p.Published = *it.UpdatedParsed
	}
	return p
}
