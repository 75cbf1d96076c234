package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/feeds"

	"github.com/jdholdren/diggfeed/internal/textutil"
)

const dublinCoreNS = "http://purl.org/dc/elements/1.1/"

// ContentType is what rendered feeds are served as.
const ContentType = "application/rss+xml; charset=utf-8"

type (
	rssDoc struct {
		XMLName xml.Name   `xml:"rss"`
		Version string     `xml:"version,attr"`
		DCNS    string     `xml:"xmlns:dc,attr"`
		Channel rssChannel `xml:"channel"`
	}

	rssChannel struct {
		Title         cdata     `xml:"title"`
		Link          string    `xml:"link"`
		Description   cdata     `xml:"description"`
		TTL           int       `xml:"ttl"`
		LastBuildDate string    `xml:"lastBuildDate"`
		Items         []rssItem `xml:"item"`
	}

	rssItem struct {
		Title       cdata  `xml:"title"`
		Link        string `xml:"link"`
		Guid        *feeds.RssGuid
		PubDate     string `xml:"pubDate,omitempty"`
		Description cdata  `xml:"description"`
		Enclosure   *feeds.RssEnclosure
		Creator     string `xml:"dc:creator,omitempty"`
	}

	cdata struct {
		Text string `xml:",cdata"`
	}
)

func newCDATA(s string) cdata {
	return cdata{Text: textutil.SanitizeCDATA(s)}
}

// rssDate formats t the way RSS readers expect, always in GMT.
func rssDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// Render serializes the channel as an RSS 2.0 document. Character data outside the
// CDATA sections is escaped by the encoder.
func Render(ch Channel, now time.Time) ([]byte, error) {
	ttl := ch.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	doc := rssDoc{
		Version: "2.0",
		DCNS:    dublinCoreNS,
		Channel: rssChannel{
			Title:         newCDATA(ch.Title),
			Link:          ch.Link,
			Description:   newCDATA(ch.Description),
			TTL:           ttl,
			LastBuildDate: rssDate(now),
			Items:         make([]rssItem, 0, len(ch.Items)),
		},
	}

	for _, it := range ch.Items {
		ri := rssItem{
			Title:       newCDATA(it.Title),
			Link:        it.Link,
			Guid:        &feeds.RssGuid{Id: it.GUID, IsPermaLink: "true"},
			Description: newCDATA(it.Description),
			Creator:     it.Author,
		}
		if !it.Published.IsZero() {
			ri.PubDate = rssDate(it.Published)
		}
		if it.Enclosure != nil {
			ri.Enclosure = &feeds.RssEnclosure{
				Url:    it.Enclosure.URL,
				Length: "0",
				Type:   it.Enclosure.Type,
			}
		}
		doc.Channel.Items = append(doc.Channel.Items, ri)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("error encoding rss: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
