// Package feed turns upstream posts into RSS channels.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	goaway "github.com/TwiN/go-away"
	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/diggfeed/internal/digg"
	"github.com/jdholdren/diggfeed/internal/textutil"
)

// Bounds for the description snippet length.
const (
	DefaultTLDRLength = 220
	MinTLDRLength     = 80
	MaxTLDRLength     = 500
)

// DefaultTTL is how many minutes readers are told to wait between polls.
const DefaultTTL = 10

const siteName = "Digg"

type (
	Channel struct {
		Title       string
		Link        string
		Description string
		// TTL in minutes.
		TTL   int
		Items []Item
	}

	Item struct {
		Title string
		// Link is the external article when there is one, otherwise the Digg page.
		Link string
		// GUID is always the Digg page.
		GUID      string
		Published time.Time
		// Description is ready-made HTML: escaped snippet plus an optional discussion link.
		Description string
		Enclosure   *Enclosure
		Author      string
	}

	Enclosure struct {
		URL  string
		Type string
	}

	Options struct {
		// TLDRLength caps the description snippet, in characters.
		TLDRLength int
		// TTL in minutes. Zero means DefaultTTL.
		TTL int
	}

	// Summarizer fetches a TL;DR for a page. An empty string means there isn't one.
	Summarizer interface {
		TLDR(ctx context.Context, pageURL string, maxLen int) string
	}
)

type (
	Assembler struct {
		siteURL         string
		filterProfanity bool
		summarizer      Summarizer
	}

	AssemblerConfig struct {
		SiteURL string
		// FilterProfanity masks profane words in titles and descriptions.
		FilterProfanity bool
	}
)

// NewAssembler creates an Assembler. summarizer may be nil, in which case descriptions
// come from the post preview or title only.
func NewAssembler(cfg AssemblerConfig, summarizer Summarizer) *Assembler {
	return &Assembler{
		siteURL:         strings.TrimRight(cfg.SiteURL, "/"),
		filterProfanity: cfg.FilterProfanity,
		summarizer:      summarizer,
	}
}

// ClampTLDRLength brings n into the allowed snippet range. Zero means the default.
func ClampTLDRLength(n int) int {
	if n == 0 {
		return DefaultTLDRLength
	}

	return min(max(n, MinTLDRLength), MaxTLDRLength)
}

// CanonicalURL is the post's page on Digg. The community prefix the API puts on ids
// is dropped so the URL matches the site's own.
func (a *Assembler) CanonicalURL(p digg.Post) string {
	community := p.Community.Slug
	id := strings.TrimPrefix(p.ID, community+"-")

	return fmt.Sprintf("%s/%s/%s/%s",
		a.siteURL,
		url.PathEscape(community),
		url.PathEscape(id),
		url.PathEscape(p.Slug),
	)
}

// Build assembles the channel for the posts, in order. TL;DRs for every post are
// fetched at once and the call returns when all of them have settled.
func (a *Assembler) Build(ctx context.Context, sel digg.Selector, posts []digg.Post, opts Options) Channel {
	maxLen := ClampTLDRLength(opts.TLDRLength)

	canonical := make([]string, len(posts))
	for i, p := range posts {
		canonical[i] = a.CanonicalURL(p)
	}

	tldrs := make([]string, len(posts))
	if a.summarizer != nil {
		var g errgroup.Group
		for i := range posts {
			g.Go(func() error {
				tldrs[i] = a.summarizer.TLDR(ctx, canonical[i], maxLen)
				return nil
			})
		}
		_ = g.Wait()
	}

	ch := a.channel(sel, posts)
	ch.TTL = opts.TTL
	if ch.TTL <= 0 {
		ch.TTL = DefaultTTL
	}

	ch.Items = make([]Item, 0, len(posts))
	for i, p := range posts {
		ch.Items = append(ch.Items, a.item(p, canonical[i], tldrs[i], maxLen))
	}

	return ch
}

func (a *Assembler) channel(sel digg.Selector, posts []digg.Post) Channel {
	if sel.IsAll() {
		return Channel{
			Title:       siteName + " · Trending",
			Link:        a.siteURL + "/",
			Description: "Top trending posts across " + siteName,
		}
	}

	return Channel{
		Title:       siteName + " · /" + sel.Community,
		Link:        a.siteURL + "/" + url.PathEscape(sel.Community),
		Description: fmt.Sprintf("Top posts in %s on %s", communityName(sel, posts), siteName),
	}
}

// communityName prefers the display name the API gave us over the slug.
func communityName(sel digg.Selector, posts []digg.Post) string {
	for _, p := range posts {
		if p.Community.Slug == sel.Community && p.Community.Name != "" {
			return p.Community.Name
		}
	}

	return "/" + sel.Community
}

func (a *Assembler) item(p digg.Post, canonical, tldr string, maxLen int) Item {
	link := canonical
	if p.ExternalURL != "" {
		link = p.ExternalURL
	}

	title := strings.TrimSpace(textutil.DecodeEntities(p.Title))
	// TL;DRs arrive as plain text already, upstream fields still carry entities.
	snippet := textutil.Truncate(tldr, maxLen)
	if snippet == "" {
		snippet = a.snippet(maxLen, p.Preview, p.Title)
	}
	if a.filterProfanity {
		title = goaway.Censor(title)
		snippet = goaway.Censor(snippet)
	}

	desc := textutil.EscapeXMLText(snippet)
	if p.ExternalURL != "" {
		desc += fmt.Sprintf(`<br/><br/><a href="%s">Discuss on %s</a>`, textutil.EscapeXMLText(canonical), siteName)
	}

	it := Item{
		Title:       title,
		Link:        link,
		GUID:        canonical,
		Published:   p.CreatedAt,
		Description: desc,
		Author:      p.Author,
	}
	if enc := youtubeEnclosure(link, canonical); enc != nil {
		it.Enclosure = enc
	}

	return it
}

// snippet is the first candidate that still has text once cleaned up.
func (a *Assembler) snippet(maxLen int, candidates ...string) string {
	for _, c := range candidates {
		if s := textutil.Truncate(textutil.StripTags(textutil.DecodeEntities(c)), maxLen); s != "" {
			return s
		}
	}

	return ""
}

func youtubeEnclosure(urls ...string) *Enclosure {
	for _, u := range urls {
		if id, ok := textutil.YouTubeID(u); ok {
			return &Enclosure{URL: textutil.YouTubeThumbnailURL(id), Type: "image/jpeg"}
		}
	}

	return nil
}
