// Package api serves the RSS feeds over HTTP.
//
// Every feed request goes through the cache first. A miss queries the upstream API,
// assembles and renders the feed, and stores the result for the next reader.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/jdholdren/diggfeed/internal/cache"
)

var Module = fx.Module("api",
	fx.Provide(
		newServer,
	),
)

type Params struct {
	fx.In

	Config ServerConfig
	Posts  PostSource
	Feeds  FeedBuilder
	Cache  cache.Store
}

func newServer(lc fx.Lifecycle, p Params) *Server {
	srvr := NewServer(p.Config, p.Posts, p.Feeds, p.Cache)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("error listening", "error", err)
				}
			}()

			slog.Info("started feed server", "addr", srvr.Addr)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}
