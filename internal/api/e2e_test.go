package api

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/diggfeed/internal/cache"
	"github.com/jdholdren/diggfeed/internal/digg"
	"github.com/jdholdren/diggfeed/internal/feed"
)

// graphqlUpstream serves n well-formed posts for every query.
func graphqlUpstream(t *testing.T, n int, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req struct {
			Variables struct {
				First int `json:"first"`
			} `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		edges := make([]map[string]any, 0, n)
		for i := range min(n, req.Variables.First) {
			edges = append(edges, map[string]any{"node": map[string]any{
				"id":              fmt.Sprintf("news-%d", i),
				"title":           fmt.Sprintf("Story <%d> & friends", i),
				"slug":            fmt.Sprintf("story-%d", i),
				"createdAt":       time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
				"externalContent": map[string]any{"url": fmt.Sprintf("https://example.com/%d", i)},
				"community":       map[string]any{"slug": "news", "name": "News"},
			}})
		}

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"posts": map[string]any{"edges": edges}},
		}))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestEndToEnd_AllFeed(t *testing.T) {
	var calls atomic.Int32
	upstream := graphqlUpstream(t, 5, &calls)

	client := digg.NewClient(digg.Config{Endpoint: upstream.URL, UserAgent: "diggfeed-test", Timeout: time.Second})
	assembler := feed.NewAssembler(feed.AssemblerConfig{SiteURL: "https://digg.com"}, nil)
	store, err := cache.NewMemory(16)
	require.NoError(t, err)
	s := NewServer(ServerConfig{}, client, assembler, store)

	rec := get(t, s, "/rss/all-digg-trending.xml?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get("Content-Type"))

	// Well-formed, with exactly five permalink guids
	var doc struct {
		Items []struct {
			GUID struct {
				Value       string `xml:",chardata"`
				IsPermaLink string `xml:"isPermaLink,attr"`
			} `xml:"guid"`
			Link string `xml:"link"`
		} `xml:"channel>item"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Items, 5)
	for i, it := range doc.Items {
		assert.Equal(t, "true", it.GUID.IsPermaLink)
		assert.Equal(t, fmt.Sprintf("https://digg.com/news/%d/story-%d", i, i), it.GUID.Value)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), it.Link)
	}
	assert.Equal(t, 5, strings.Count(rec.Body.String(), "<item>"))
	assert.EqualValues(t, 1, calls.Load())

	// Second identical request is served from cache
	rec = get(t, s, "/rss/all-digg-trending.xml?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get(CacheStatusHeader))
	assert.EqualValues(t, 1, calls.Load())
}
