package system

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long in-flight requests get after the run
// context is cancelled.
const ShutdownTimeout = 10 * time.Second

// TLS is optional; the TLS listener only starts when Cert and Key are set.
type TLS struct {
	Addr string
	Cert string
	Key  string
}

// Run serves h on the configured address until ctx is done, refreshing the
// feed cache and handling reload signals alongside.
func (s *System) Run(ctx context.Context, h http.Handler, tls TLS) error {
	cfg := s.Config()
	servers := []*http.Server{{
		Addr:              cfg.Meta.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if tls.Cert != "" && tls.Key != "" && tls.Addr != "" {
		servers = append(servers, &http.Server{
			Addr:              tls.Addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			var err error
			if i == 0 {
				s.log.Infow("serving HTTP", "addr", srv.Addr, "url", cfg.Meta.SiteURL)
				err = srv.ListenAndServe()
			} else {
				s.log.Infow("serving TLS", "addr", srv.Addr)
				err = srv.ListenAndServeTLS(tls.Cert, tls.Key)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		s.feeds.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.HandleSignals(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Infow("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(sctx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
