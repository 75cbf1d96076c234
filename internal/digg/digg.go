// Package digg talks to Digg: the GraphQL API for listing posts, and the post pages
// themselves for TL;DR summaries.
//
// The GraphQL filter schema is not documented and has changed under us before, so
// listing posts is a search over time windows and filter shapes rather than one query.
package digg

import (
	"fmt"
	"time"
	"unicode/utf8"
)

type (
	// Selector identifies which feed to build.
	Selector struct {
		// Community is the lowercase community slug. Empty means every community.
		Community string
	}

	// Post is one post as returned by the upstream API.
	Post struct {
		ID          string
		Title       string
		Slug        string
		CreatedAt   time.Time
		ExternalURL string
		Community   Community
		Author      string
		Preview     string
	}

	Community struct {
		Slug string
		Name string
	}
)

// All is the selector for the global trending feed.
var All = Selector{}

// IsAll reports whether this is the global feed.
func (s Selector) IsAll() bool {
	return s.Community == ""
}

func (s Selector) String() string {
	if s.IsAll() {
		return "all"
	}

	return s.Community
}

// UpstreamError is returned when every query attempt failed or came back empty.
type UpstreamError struct {
	// Payload is a JSON dump of the last error seen, truncated for display.
	Payload string
}

func (e *UpstreamError) Error() string {
	return e.Payload
}

// Keeps the upstream payload shown to clients to a sane size.
const maxPayloadLen = 1000

func newUpstreamError(payload []byte) *UpstreamError {
	s := string(payload)
	if len(s) > maxPayloadLen {
		s = string(clip(payload, maxPayloadLen)) + "…"
	}

	return &UpstreamError{Payload: s}
}

// clip cuts b to at most n bytes without splitting a UTF-8 sequence.
func clip(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return b[:n]
}

func (p Post) String() string {
	return fmt.Sprintf("%s/%s", p.Community.Slug, p.ID)
}
