package digg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type (
	Client struct {
		endpoint   string
		userAgent  string
		goodEnough int
		richFields bool
		httpClient *http.Client
		limiter    *rate.Limiter
		now        func() time.Time
	}

	Config struct {
		Endpoint  string
		UserAgent string
		Timeout   time.Duration
		// RequestsPerSecond caps calls to the API. Zero means no cap.
		RequestsPerSecond float64
		// GoodEnough is how many posts a clean attempt needs before the search stops.
		GoodEnough int
		// RichFields asks for author and preview text along with each post.
		RichFields bool
	}
)

const (
	defaultTimeout    = 10 * time.Second
	defaultGoodEnough = 5
	// Upstream bodies are small JSON; anything bigger than this is not a posts page.
	maxBodyBytes = 4 << 20
)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.GoodEnough <= 0 {
		cfg.GoodEnough = defaultGoodEnough
	}

	c := &Client{
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		goodEnough: cfg.GoodEnough,
		richFields: cfg.RichFields,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return c
}

// outcome is what one attempt produced. failure is nil only when the API answered
// without errors.
type outcome struct {
	posts   []Post
	failure json.RawMessage
}

// TopPosts returns up to first of the top posts for the selector.
//
// Attempts run one at a time, widest filter last, and the first clean one with enough
// posts wins. When none is good enough, the biggest result seen is returned instead.
// Only when nothing at all came back is an [*UpstreamError] returned.
func (c *Client) TopPosts(ctx context.Context, sel Selector, first int) ([]Post, error) {
	threshold := min(first, c.goodEnough)

	var (
		best outcome
		last json.RawMessage
	)
	for _, a := range plan(sel, c.now()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		o := c.try(ctx, a, first)
		if o.failure != nil {
			last = o.failure
		}

		slog.DebugContext(ctx, "upstream attempt",
			"selector", sel.String(),
			"window", a.window.String(),
			"variant", a.variant.name,
			"posts", len(o.posts),
			"failed", o.failure != nil,
		)

		switch decide(o, len(best.posts), threshold) {
		case decisionAccept:
			return o.posts, nil
		case decisionFallback:
			best = o
		}
	}

	if len(best.posts) > 0 {
		slog.InfoContext(ctx, "using best fallback result", "selector", sel.String(), "posts", len(best.posts))
		return best.posts, nil
	}

	if last == nil {
		last = failure("no posts returned")
	}
	return nil, newUpstreamError(last)
}

// try makes a single request. It never returns an error; every problem is folded into
// the outcome's failure so the search can move on.
func (c *Client) try(ctx context.Context, a attempt, first int) outcome {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return outcome{failure: failure(err.Error())}
		}
	}

	query := fmt.Sprintf(postsQuery, "")
	if c.richFields {
		query = fmt.Sprintf(postsQuery, richFields)
	}
	body, err := json.Marshal(gqlRequest{
		OperationName: operationName,
		Query:         query,
		Variables: variables{
			First: first,
			Sort:  sortTopN,
			Where: a.where,
		},
	})
	if err != nil {
		return outcome{failure: failure(fmt.Sprintf("error encoding request: %s", err))}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return outcome{failure: failure(fmt.Sprintf("error creating request: %s", err))}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outcome{failure: failure(fmt.Sprintf("error calling upstream: %s", err))}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return outcome{failure: failure(fmt.Sprintf("error reading response: %s", err))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return outcome{failure: statusFailure(resp.StatusCode, raw)}
	}

	d, err := decode(raw)
	if err != nil {
		return outcome{failure: failure(err.Error())}
	}

	posts := d.posts
	if len(posts) > first {
		posts = posts[:first]
	}
	return outcome{posts: posts, failure: d.errors}
}

func failure(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}

func statusFailure(code int, body []byte) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"status": code,
		"body":   string(clip(body, maxPayloadLen)),
	})
	return b
}
