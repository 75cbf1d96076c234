package feed

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/diggfeed/internal/digg"
)

type stubSummarizer struct {
	mu       sync.Mutex
	tldrs    map[string]string
	asked    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	gate     chan struct{}
}

func (s *stubSummarizer) TLDR(_ context.Context, pageURL string, _ int) string {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, pageURL)
	return s.tldrs[pageURL]
}

func testPost(id, community string) digg.Post {
	return digg.Post{
		ID:        community + "-" + id,
		Title:     "Title " + id,
		Slug:      "slug-" + id,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Community: digg.Community{Slug: community, Name: strings.ToUpper(community)},
	}
}

func TestCanonicalURL(t *testing.T) {
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com/"}, nil)

	assert.Equal(t, "https://digg.com/tech/abc123/some-slug", a.CanonicalURL(digg.Post{
		ID:        "tech-abc123",
		Slug:      "some-slug",
		Community: digg.Community{Slug: "tech"},
	}))
	// Only the matching prefix is dropped
	assert.Equal(t, "https://digg.com/tech/news-abc/s", a.CanonicalURL(digg.Post{
		ID:        "news-abc",
		Slug:      "s",
		Community: digg.Community{Slug: "tech"},
	}))
}

func TestBuild_LinksAndGUIDs(t *testing.T) {
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, nil)

	external := testPost("1", "tech")
	external.ExternalURL = "https://example.com/story?a=1&b=2"
	internal := testPost("2", "tech")

	ch := a.Build(context.Background(), digg.Selector{Community: "tech"}, []digg.Post{external, internal}, Options{})
	require.Len(t, ch.Items, 2)

	assert.Equal(t, "https://example.com/story?a=1&b=2", ch.Items[0].Link)
	assert.Equal(t, "https://digg.com/tech/1/slug-1", ch.Items[0].GUID)
	assert.Contains(t, ch.Items[0].Description, `<br/><br/><a href="https://digg.com/tech/1/slug-1">Discuss on Digg</a>`)

	assert.Equal(t, ch.Items[1].GUID, ch.Items[1].Link)
	assert.NotContains(t, ch.Items[1].Description, "Discuss on")

	assert.Equal(t, "Digg · /tech", ch.Title)
	assert.Equal(t, "https://digg.com/tech", ch.Link)
	assert.Equal(t, "Top posts in TECH on Digg", ch.Description)
	assert.Equal(t, DefaultTTL, ch.TTL)
}

func TestBuild_AllChannel(t *testing.T) {
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, nil)

	ch := a.Build(context.Background(), digg.All, nil, Options{TTL: 15})
	assert.Equal(t, "Digg · Trending", ch.Title)
	assert.Equal(t, "https://digg.com/", ch.Link)
	assert.Empty(t, ch.Items)
	assert.Equal(t, 15, ch.TTL)
}

func TestBuild_DescriptionPrecedence(t *testing.T) {
	withTLDR := testPost("1", "tech")
	withPreview := testPost("2", "tech")
	withPreview.Preview = "<p>The preview &amp; <b>more</b></p>"
	titleOnly := testPost("3", "tech")
	titleOnly.Title = "Cats &amp; Dogs"
	blankPreview := testPost("4", "tech")
	blankPreview.Preview = "   "

	s := &stubSummarizer{tldrs: map[string]string{
		"https://digg.com/tech/1/slug-1": "From the page",
	}}
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, s)

	ch := a.Build(context.Background(), digg.All, []digg.Post{withTLDR, withPreview, titleOnly, blankPreview}, Options{})
	require.Len(t, ch.Items, 4)

	assert.Equal(t, "From the page", ch.Items[0].Description)
	assert.Equal(t, "The preview &amp; more", ch.Items[1].Description)
	assert.Equal(t, "Cats &amp; Dogs", ch.Items[2].Description)
	assert.Equal(t, "Cats & Dogs", ch.Items[2].Title)
	assert.Equal(t, "Title 4", ch.Items[3].Description)

	assert.ElementsMatch(t, []string{
		"https://digg.com/tech/1/slug-1",
		"https://digg.com/tech/2/slug-2",
		"https://digg.com/tech/3/slug-3",
		"https://digg.com/tech/4/slug-4",
	}, s.asked)
}

func TestBuild_TLDRIsNotDecodedAgain(t *testing.T) {
	p := testPost("1", "tech")
	s := &stubSummarizer{tldrs: map[string]string{
		"https://digg.com/tech/1/slug-1": "Write &lt;b&gt; for bold",
	}}
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, s)

	ch := a.Build(context.Background(), digg.All, []digg.Post{p}, Options{})
	require.Len(t, ch.Items, 1)
	assert.Equal(t, "Write &amp;lt;b&amp;gt; for bold", ch.Items[0].Description)
}

func TestBuild_TruncatesSnippet(t *testing.T) {
	p := testPost("1", "tech")
	p.Preview = strings.Repeat("lorem ipsum ", 100)
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, nil)

	ch := a.Build(context.Background(), digg.All, []digg.Post{p}, Options{TLDRLength: 10})
	desc := ch.Items[0].Description
	assert.LessOrEqual(t, len([]rune(desc)), MinTLDRLength+1)
	assert.True(t, strings.HasSuffix(desc, "…"))
}

func TestBuild_SummariesRunConcurrently(t *testing.T) {
	s := &stubSummarizer{gate: make(chan struct{})}
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, s)

	posts := []digg.Post{testPost("1", "a"), testPost("2", "a"), testPost("3", "a")}
	done := make(chan Channel)
	go func() { done <- a.Build(context.Background(), digg.All, posts, Options{}) }()

	require.Eventually(t, func() bool { return s.inFlight.Load() == 3 }, time.Second, time.Millisecond)
	close(s.gate)

	ch := <-done
	assert.Len(t, ch.Items, 3)
	assert.EqualValues(t, 3, s.peak.Load())
}

func TestBuild_YouTubeEnclosure(t *testing.T) {
	linked := testPost("1", "video")
	linked.ExternalURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	plain := testPost("2", "video")

	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, nil)
	ch := a.Build(context.Background(), digg.All, []digg.Post{linked, plain}, Options{})

	require.NotNil(t, ch.Items[0].Enclosure)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", ch.Items[0].Enclosure.URL)
	assert.Equal(t, "image/jpeg", ch.Items[0].Enclosure.Type)
	assert.Nil(t, ch.Items[1].Enclosure)
}

func TestBuild_FilterProfanity(t *testing.T) {
	p := testPost("1", "tech")
	p.Title = "What the fuck happened"
	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com", FilterProfanity: true}, nil)

	ch := a.Build(context.Background(), digg.All, []digg.Post{p}, Options{})
	assert.NotContains(t, ch.Items[0].Title, "fuck")
	assert.NotContains(t, ch.Items[0].Description, "fuck")
	assert.True(t, strings.HasPrefix(ch.Items[0].Title, "What the "))
}

func TestClampTLDRLength(t *testing.T) {
	assert.Equal(t, DefaultTLDRLength, ClampTLDRLength(0))
	assert.Equal(t, MinTLDRLength, ClampTLDRLength(5))
	assert.Equal(t, MaxTLDRLength, ClampTLDRLength(5000))
	assert.Equal(t, 300, ClampTLDRLength(300))
}
