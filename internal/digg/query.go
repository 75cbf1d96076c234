package digg

import (
	"time"
)

const operationName = "DiggFeedPosts"

const postsQuery = `query DiggFeedPosts($first: Int!, $sort: PostSort, $where: PostFilter) {
  posts(first: $first, sort: $sort, where: $where) {
    edges {
      node {
        id
        title
        slug
        createdAt
        externalContent { url }
        community { slug name }%s
      }
    }
  }
}`

// Only requested when the deployment trusts the schema to have them.
const richFields = `
        account { username }
        tldr`

const sortTopN = "TOP_N"

type (
	gqlRequest struct {
		OperationName string    `json:"operationName"`
		Query         string    `json:"query"`
		Variables     variables `json:"variables"`
	}

	variables struct {
		First int            `json:"first"`
		Sort  string         `json:"sort"`
		Where map[string]any `json:"where"`
	}
)

// A filter shape for the `where` argument.
type variant struct {
	name  string
	where func(community string, since time.Time) map[string]any
}

func createdSince(since time.Time) map[string]any {
	return map[string]any{"gte": since.UTC().Format(time.RFC3339)}
}

var (
	timeOnly = variant{
		name: "time_only",
		where: func(_ string, since time.Time) map[string]any {
			return map[string]any{"createdAt": createdSince(since)}
		},
	}

	// Nobody is sure which of these the API wants for community filtering, so they are
	// tried in order.
	communityVariants = []variant{
		{
			name: "flat_slug",
			where: func(community string, since time.Time) map[string]any {
				return map[string]any{
					"createdAt":     createdSince(since),
					"communitySlug": community,
				}
			},
		},
		{
			name: "flat_slug_eq",
			where: func(community string, since time.Time) map[string]any {
				return map[string]any{
					"createdAt":     createdSince(since),
					"communitySlug": map[string]any{"eq": community},
				}
			},
		},
		{
			name: "nested_slug",
			where: func(community string, since time.Time) map[string]any {
				return map[string]any{
					"createdAt": createdSince(since),
					"community": map[string]any{"slug": community},
				}
			},
		},
		{
			name: "nested_slug_eq",
			where: func(community string, since time.Time) map[string]any {
				return map[string]any{
					"createdAt": createdSince(since),
					"community": map[string]any{"slug": map[string]any{"eq": community}},
				}
			},
		},
	}
)

// Smaller windows are fresher but sparse for quiet communities. The global feed has
// enough volume that it gives up sooner.
var (
	allWindows       = []time.Duration{24 * time.Hour, 72 * time.Hour}
	communityWindows = []time.Duration{24 * time.Hour, 72 * time.Hour, 7 * 24 * time.Hour}
)

// attempt is one (window, filter shape) request to make against the API.
type attempt struct {
	window  time.Duration
	variant variant
	where   map[string]any
}

// plan lists every attempt for the selector in the order they should be tried.
func plan(sel Selector, now time.Time) []attempt {
	windows, variants := communityWindows, communityVariants
	if sel.IsAll() {
		windows, variants = allWindows, []variant{timeOnly}
	}

	attempts := make([]attempt, 0, len(windows)*len(variants))
	for _, w := range windows {
		for _, v := range variants {
			attempts = append(attempts, attempt{
				window:  w,
				variant: v,
				where:   v.where(sel.Community, now.Add(-w)),
			})
		}
	}

	return attempts
}

type decision int

const (
	decisionContinue decision = iota // Nothing worth keeping, try the next attempt
	decisionFallback                 // Better than anything so far, but keep looking
	decisionAccept                   // Good enough, stop here
)

// decide judges an attempt's outcome against the best count seen so far.
//
// threshold is how many posts make a clean result good enough to stop on.
func decide(o outcome, best, threshold int) decision {
	switch {
	case o.failure == nil && len(o.posts) >= threshold && len(o.posts) > 0:
		return decisionAccept
	case len(o.posts) > best:
		return decisionFallback
	default:
		return decisionContinue
	}
}
