package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/jdholdren/diggfeed/internal/cache"
	"github.com/jdholdren/diggfeed/internal/digg"
	"github.com/jdholdren/diggfeed/internal/feed"
	"github.com/jdholdren/diggfeed/internal/serverutil"
)

type (
	// Server serves the RSS feeds, building them from the upstream API on a cache miss.
	Server struct {
		*http.Server

		posts   PostSource
		feeds   FeedBuilder
		cache   cache.Store
		feedTTL time.Duration
		started time.Time

		// Background cache writes still in flight
		writes sync.WaitGroup
	}

	ServerConfig struct {
		Port int
		// FeedTTL is how long a rendered feed is served from cache.
		FeedTTL time.Duration
	}

	PostSource interface {
		TopPosts(ctx context.Context, sel digg.Selector, first int) ([]digg.Post, error)
	}

	FeedBuilder interface {
		Build(ctx context.Context, sel digg.Selector, posts []digg.Post, opts feed.Options) feed.Channel
	}
)

const defaultFeedTTL = 10 * time.Minute

func NewServer(config ServerConfig, posts PostSource, feeds FeedBuilder, store cache.Store) *Server {
	if config.FeedTTL <= 0 {
		config.FeedTTL = defaultFeedTTL
	}

	r := serverutil.ErrRouter{Router: mux.NewRouter()}
	srvr := &Server{
		posts:   posts,
		feeds:   feeds,
		cache:   store,
		feedTTL: config.FeedTTL,
		started: time.Now(),
	}
	srvr.Server = &http.Server{
		Addr:        fmt.Sprintf(":%d", config.Port),
		ReadTimeout: 5 * time.Second,
		// Enough for a full sweep of upstream attempts plus page fetches
		WriteTimeout: 2 * time.Minute,
		Handler: handlers.CompressHandler(
			serverutil.AccessLogMiddleware(rewriteLegacyPaths(r)),
		),
	}

	r.NotFoundHandler = serverutil.NotFound
	r.HandleFuncE("/healthz", srvr.getHealthz).Methods(http.MethodGet)
	r.HandleFuncE("/rss/all-digg-trending.xml", srvr.getAllFeed).Methods(http.MethodGet, http.MethodHead)
	r.HandleFuncE("/rss/{community:[A-Za-z0-9-]+}.xml", srvr.getCommunityFeed).Methods(http.MethodGet, http.MethodHead)

	slog.Debug("configured feed server", "port", config.Port)

	return srvr
}

// Shutdown stops the HTTP server and then waits for pending cache writes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.writes.Wait()
	return err
}

const legacyPrefix = "/rss/digg/"

// rewriteLegacyPaths serves the old /rss/digg/... URLs as if they were /rss/....
func rewriteLegacyPaths(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest, ok := strings.CutPrefix(r.URL.Path, legacyPrefix)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		r = r.Clone(r.Context())
		r.URL.Path = "/rss/" + rest
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}

type healthz struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime_seconds"`
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, healthz{
		Status: "ok",
		Uptime: time.Since(s.started).Seconds(),
	})
}
