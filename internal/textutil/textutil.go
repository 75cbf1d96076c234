// Package textutil holds the string helpers used to turn upstream post text into
// feed-safe snippets: truncation, entity decoding, XML escaping and YouTube link parsing.
package textutil

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Ellipsis is appended to snippets that were cut short.
const Ellipsis = "…"

// Word boundaries this close to the start are ignored in favour of a hard cut.
const minBoundary = 40

// Truncate collapses whitespace and cuts the text to maxLen runes, preferring the last
// word boundary before the limit.
func Truncate(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	cut := string([]rune(text)[:maxLen])
	if i := strings.LastIndex(cut, " "); i >= 0 && utf8.RuneCountInString(cut[:i]) > minBoundary {
		cut = cut[:i]
	}

	return strings.TrimRight(cut, " ") + Ellipsis
}

var namedEntities = strings.NewReplacer(
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&lt;", "<",
	"&gt;", ">",
	"&nbsp;", " ",
)

var numericEntity = regexp.MustCompile(`&#(?:([0-9]{1,7})|[xX]([0-9a-fA-F]{1,6}));`)

// DecodeEntities reverses the handful of HTML entities upstream text tends to arrive with.
//
// &amp; is decoded last so "&amp;lt;" becomes "&lt;" and not "<".
func DecodeEntities(text string) string {
	if !strings.Contains(text, "&") {
		return text
	}

	text = namedEntities.Replace(text)
	text = numericEntity.ReplaceAllStringFunc(text, func(m string) string {
		sub := numericEntity.FindStringSubmatch(m)
		var (
			n   uint64
			err error
		)
		if sub[1] != "" {
			n, err = strconv.ParseUint(sub[1], 10, 32)
		} else {
			n, err = strconv.ParseUint(sub[2], 16, 32)
		}
		if err != nil || n == 0 || !utf8.ValidRune(rune(n)) {
			return m
		}

		return string(rune(n))
	})

	return strings.ReplaceAll(text, "&amp;", "&")
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// EscapeXMLText escapes a value for use outside of a CDATA section.
func EscapeXMLText(text string) string {
	return xmlEscaper.Replace(text)
}

// SanitizeCDATA makes a value safe to embed inside a CDATA section. The encoder writes
// CDATA verbatim, so characters XML doesn't allow are dropped here.
func SanitizeCDATA(text string) string {
	text = strings.Map(func(r rune) rune {
		if !isXMLChar(r) {
			return -1
		}
		return r
	}, text)

	return strings.ReplaceAll(text, "]]>", "]]&gt;")
}

// isXMLChar reports whether r is in the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}

var stripPolicy = bluemonday.StrictPolicy()

// StripTags removes any markup from the text, leaving plain text behind.
//
// bluemonday re-escapes what it keeps, so the result is decoded again.
func StripTags(text string) string {
	if !strings.ContainsAny(text, "<>") {
		return text
	}

	return DecodeEntities(stripPolicy.Sanitize(text))
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,16}$`)

// YouTubeID extracts the video id from a youtu.be or youtube.com link.
func YouTubeID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}

	var (
		host     = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		segments = strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		id       string
	)
	switch {
	case host == "youtu.be":
		if len(segments) > 0 {
			id = segments[0]
		}
	case strings.HasSuffix(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		if len(segments) >= 2 {
			switch segments[0] {
			case "shorts", "embed", "live":
				id = segments[1]
			}
		}
	}

	if !youtubeIDPattern.MatchString(id) {
		return "", false
	}

	return id, true
}

// YouTubeThumbnailURL is the high quality thumbnail for a video id.
func YouTubeThumbnailURL(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}
