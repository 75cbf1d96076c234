package digg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

type (
	gqlResponse struct {
		Data *struct {
			Posts *struct {
				Edges []struct {
					Node *postNode `json:"node"`
				} `json:"edges"`
			} `json:"posts"`
		} `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}

	postNode struct {
		ID              string        `json:"id"`
		Title           string        `json:"title"`
		Slug            string        `json:"slug"`
		CreatedAt       timestamp     `json:"createdAt"`
		ExternalContent *externalNode `json:"externalContent"`
		Community       *struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
		} `json:"community"`
		Account *struct {
			Username string `json:"username"`
		} `json:"account"`
		TLDR string `json:"tldr"`
	}

	externalNode struct {
		URL string `json:"url"`
	}
)

// timestamp accepts createdAt as an RFC 3339 or "2006-01-02 15:04:05" string, or as
// epoch seconds or millis. Anything else leaves it zero, and the post goes out without
// a pubDate rather than taking the rest of the page down with it.
type timestamp time.Time

// Anything past this as seconds would be tens of thousands of years out, so it's millis.
const millisCutoff = 1e11

var timestampLayouts = []string{time.RFC3339Nano, time.DateTime}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	parsed, ok := parseTimestamp(b)
	if !ok {
		slog.Debug("ignoring unparsable createdAt", "value", string(b))
	}
	*t = timestamp(parsed)
	return nil
}

func parseTimestamp(b []byte) (time.Time, bool) {
	if bytes.Equal(b, []byte("null")) {
		return time.Time{}, true
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return time.Time{}, false
		}
		if s == "" {
			return time.Time{}, true
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	}

	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return time.Time{}, false
	}
	if n > millisCutoff {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	return time.Unix(int64(n), 0).UTC(), true
}

// decoded is what one response tells us: the posts, plus the GraphQL errors if there
// were any.
type decoded struct {
	posts  []Post
	errors json.RawMessage
}

var errNoPosts = errors.New("response has neither data.posts nor errors")

// decode reads a GraphQL response body strictly. A body that isn't the expected shape
// is an error rather than an empty result.
func decode(body []byte) (decoded, error) {
	var resp gqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decoded{}, fmt.Errorf("error decoding response: %w", err)
	}

	var out decoded
	if len(resp.Errors) > 0 {
		raw, err := json.Marshal(resp.Errors)
		if err != nil {
			return decoded{}, fmt.Errorf("error encoding graphql errors: %w", err)
		}
		out.errors = raw
	}

	if resp.Data == nil || resp.Data.Posts == nil {
		if out.errors == nil {
			return decoded{}, errNoPosts
		}
		return out, nil
	}

	for _, edge := range resp.Data.Posts.Edges {
		if edge.Node == nil || edge.Node.ID == "" {
			continue
		}
		out.posts = append(out.posts, edge.Node.post())
	}

	return out, nil
}

func (n *postNode) post() Post {
	p := Post{
		ID:        n.ID,
		Title:     n.Title,
		Slug:      n.Slug,
		CreatedAt: time.Time(n.CreatedAt),
		Preview:   n.TLDR,
	}
	if n.ExternalContent != nil {
		p.ExternalURL = n.ExternalContent.URL
	}
	if n.Community != nil {
		p.Community = Community{Slug: n.Community.Slug, Name: n.Community.Name}
	}
	if n.Account != nil {
		p.Author = n.Account.Username
	}

	return p
}
