package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sethvargo/go-retry"

	"github.com/jdholdren/diggfeed/internal/cache"
	"github.com/jdholdren/diggfeed/internal/digg"
	seyerrs "github.com/jdholdren/diggfeed/internal/errors"
	"github.com/jdholdren/diggfeed/internal/feed"
	"github.com/jdholdren/diggfeed/internal/logger"
)

// CacheStatusHeader says whether the feed came out of the cache.
const CacheStatusHeader = "X-Cache"

func (s *Server) getAllFeed(w http.ResponseWriter, r *http.Request) error {
	return s.serveFeed(w, r, digg.All)
}

func (s *Server) getCommunityFeed(w http.ResponseWriter, r *http.Request) error {
	community := strings.ToLower(mux.Vars(r)["community"])
	return s.serveFeed(w, r, digg.Selector{Community: community})
}

// cacheKey is the request path and query, exactly as sent.
func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}

	return r.URL.Path + "?" + r.URL.RawQuery
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, sel digg.Selector) error {
	ctx := logger.Ctx(r.Context(), slog.String("feed", sel.String()))
	key := cacheKey(r)

	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		// A broken cache shouldn't take the feeds down with it.
		slog.WarnContext(ctx, "error reading feed cache", "key", key, "error", err)
	}
	if ok {
		return writeEntry(w, entry, "HIT")
	}

	params := parseFeedParams(r)
	posts, err := s.posts.TopPosts(ctx, sel, params.Limit)
	var upErr *digg.UpstreamError
	if errors.As(err, &upErr) {
		return seyerrs.E(seyerrs.KindUpstream, http.StatusBadGateway, err)
	}
	if err != nil {
		return seyerrs.E(fmt.Errorf("error fetching posts: %w", err))
	}

	ch := s.feeds.Build(ctx, sel, posts, feed.Options{
		TLDRLength: params.TLDRLength,
		TTL:        int(s.feedTTL.Minutes()),
	})
	body, err := feed.Render(ch, time.Now())
	if err != nil {
		return seyerrs.E(err)
	}

	entry = cache.Entry{
		Body:         body,
		ContentType:  feed.ContentType,
		CacheControl: fmt.Sprintf("public, max-age=%d", int(s.feedTTL.Seconds())),
	}
	s.storeInBackground(ctx, key, entry)

	return writeEntry(w, entry, "MISS")
}

func writeEntry(w http.ResponseWriter, e cache.Entry, status string) error {
	w.Header().Set("Content-Type", e.ContentType)
	w.Header().Set("Cache-Control", e.CacheControl)
	w.Header().Set(CacheStatusHeader, status)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(e.Body); err != nil {
		return fmt.Errorf("error writing feed: %s", err)
	}

	return nil
}

// storeInBackground writes the entry without holding up the response. Failures are
// retried briefly, then logged and dropped.
func (s *Server) storeInBackground(ctx context.Context, key string, e cache.Entry) {
	ctx = context.WithoutCancel(ctx)

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
		if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := s.cache.Put(ctx, key, e, s.feedTTL); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		}); err != nil {
			slog.ErrorContext(ctx, "error writing feed cache", "key", key, "error", err)
		}
	}()
}
