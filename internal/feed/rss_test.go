package feed

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/diggfeed/internal/digg"
)

func TestRender(t *testing.T) {
	now := time.Date(2024, 3, 2, 8, 30, 0, 0, time.FixedZone("EST", -5*3600))
	ch := Channel{
		Title:       "Digg · /tech",
		Link:        "https://digg.com/tech",
		Description: "Top posts in Technology on Digg",
		Items: []Item{
			{
				Title:       "Break ]]> out & <escape>",
				Link:        "https://example.com/a?x=1&y=2",
				GUID:        "https://digg.com/tech/1/one",
				Published:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				Description: `Snippet &amp; more<br/><br/><a href="https://digg.com/tech/1/one">Discuss on Digg</a>`,
				Enclosure:   &Enclosure{URL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", Type: "image/jpeg"},
				Author:      "sam",
			},
			{
				Title: "Second",
				Link:  "https://digg.com/tech/2/two",
				GUID:  "https://digg.com/tech/2/two",
			},
		},
	}

	out, err := Render(ch, now)
	require.NoError(t, err)
	body := string(out)

	assert.True(t, strings.HasPrefix(body, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, body, `<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	assert.Contains(t, body, `<ttl>10</ttl>`)
	assert.Contains(t, body, `<lastBuildDate>Sat, 02 Mar 2024 13:30:00 GMT</lastBuildDate>`)
	assert.Contains(t, body, `<pubDate>Fri, 01 Mar 2024 12:00:00 GMT</pubDate>`)
	assert.Contains(t, body, `<guid isPermaLink="true">https://digg.com/tech/1/one</guid>`)
	assert.Contains(t, body, `<link>https://example.com/a?x=1&amp;y=2</link>`)
	assert.Contains(t, body, `length="0"`)
	assert.Contains(t, body, `<dc:creator>sam</dc:creator>`)
	assert.Contains(t, body, `<![CDATA[Break ]]&gt; out & <escape>]]>`)
	assert.Equal(t, 1, strings.Count(body, "<pubDate>"))

	parsed, err := gofeed.NewParser().ParseString(body)
	require.NoError(t, err)
	assert.Equal(t, "Digg · /tech", parsed.Title)
	require.Len(t, parsed.Items, 2)

	first := parsed.Items[0]
	assert.Equal(t, "https://example.com/a?x=1&y=2", first.Link)
	assert.Equal(t, "https://digg.com/tech/1/one", first.GUID)
	assert.Contains(t, first.Description, "Discuss on Digg")
	require.Len(t, first.Enclosures, 1)
	assert.Equal(t, "image/jpeg", first.Enclosures[0].Type)
	require.NotNil(t, first.Author)
	assert.Equal(t, "sam", first.Author.Name)

	for _, it := range parsed.Items {
		assert.NotEmpty(t, it.GUID)
	}
}

func TestRender_CustomTTL(t *testing.T) {
	out, err := Render(Channel{Title: "t", TTL: 30}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(out), "<ttl>30</ttl>")
}

func TestRender_ControlCharactersStayWellFormed(t *testing.T) {
	p := testPost("1", "tech")
	p.Title = "Breaking &#1; news\x0b"
	p.Preview = "Preview with \x02 a control char"
	p.Author = "sam\x01"

	a := NewAssembler(AssemblerConfig{SiteURL: "https://digg.com"}, nil)
	ch := a.Build(context.Background(), digg.All, []digg.Post{p}, Options{})

	out, err := Render(ch, time.Now())
	require.NoError(t, err)

	var doc struct {
		Titles []string `xml:"channel>item>title"`
	}
	require.NoError(t, xml.Unmarshal(out, &doc))
	require.Len(t, doc.Titles, 1)
	assert.Equal(t, "Breaking  news", doc.Titles[0])

	parsed, err := gofeed.NewParser().ParseString(string(out))
	require.NoError(t, err)
	require.Len(t, parsed.Items, 1)
	assert.Contains(t, parsed.Items[0].Description, "a control char")
}
