package digg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jdholdren/diggfeed/internal/cache"
	"github.com/jdholdren/diggfeed/internal/textutil"
)

type (
	// Summarizer pulls a short description for a post out of its page's meta tags.
	Summarizer struct {
		userAgent  string
		ttl        time.Duration
		httpClient *http.Client
		cache      cache.Store
	}

	SummarizerConfig struct {
		UserAgent string
		Timeout   time.Duration
		// TTL is how long a summary, including an empty one, is remembered.
		TTL time.Duration
	}
)

const (
	defaultSummaryTimeout = 3 * time.Second
	defaultSummaryTTL     = time.Hour
	// The meta tags live in <head>, which is never anywhere near this big.
	maxPageBytes = 1 << 20
)

func NewSummarizer(cfg SummarizerConfig, store cache.Store) *Summarizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSummaryTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSummaryTTL
	}

	return &Summarizer{
		userAgent:  cfg.UserAgent,
		ttl:        cfg.TTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      store,
	}
}

// TLDR returns the page's description cleaned to plain text and cut to maxLen, or ""
// when there isn't one or the page couldn't be fetched. It never fails.
func (s *Summarizer) TLDR(ctx context.Context, pageURL string, maxLen int) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic summarizing page", "url", pageURL, "panic", r)
			summary = ""
		}
	}()

	key := fmt.Sprintf("tldr:%d:%s", maxLen, pageURL)
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "error reading summary cache", "key", key, "error", err)
	}
	if ok {
		return string(entry.Body)
	}

	desc, err := s.fetchDescription(ctx, pageURL)
	if err != nil {
		// Not remembered, the next build gets another go at it.
		slog.DebugContext(ctx, "error fetching page for summary", "url", pageURL, "error", err)
		return ""
	}

	// The tokenizer has already decoded the attribute, so it is not decoded again.
	summary = textutil.Truncate(textutil.StripTags(desc), maxLen)
	if err := s.cache.Put(ctx, key, cache.Entry{
		Body:        []byte(summary),
		ContentType: "text/plain; charset=utf-8",
	}, s.ttl); err != nil {
		slog.WarnContext(ctx, "error writing summary cache", "key", key, "error", err)
	}

	return summary
}

func (s *Summarizer) fetchDescription(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status fetching page: %d", resp.StatusCode)
	}

	return metaDescription(io.LimitReader(resp.Body, maxPageBytes)), nil
}

// metaDescription scans the document head for og:description, falling back to the
// plain description meta tag.
func metaDescription(r io.Reader) string {
	var og, plain string
	pick := func() string {
		if strings.TrimSpace(og) != "" {
			return og
		}
		return plain
	}

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return pick()
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return pick()
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return pick()
			case "meta":
				if !hasAttr {
					continue
				}
				kind, content := metaAttrs(z)
				switch {
				case kind == "og:description" && og == "":
					og = content
				case kind == "description" && plain == "":
					plain = content
				}
			}
		}
	}
}

// metaAttrs returns which description a meta tag carries, if any, and its content.
func metaAttrs(z *html.Tokenizer) (kind, content string) {
	for more := true; more; {
		var k, v []byte
		k, v, more = z.TagAttr()
		switch string(k) {
		case "property", "name":
			switch val := strings.ToLower(strings.TrimSpace(string(v))); val {
			case "og:description", "description":
				kind = val
			}
		case "content":
			content = string(v)
		}
	}

	return kind, content
}
