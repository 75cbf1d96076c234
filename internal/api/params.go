package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/jdholdren/diggfeed/internal/feed"
)

const (
	defaultLimit = 10
	minLimit     = 1
	maxLimit     = 50
)

// feedParams are the query parameters a feed request can carry.
type feedParams struct {
	Limit      int
	TLDRLength int
}

// parseFeedParams reads limit and tldr from the query string. Only the leading integer
// of a value counts, so "5.5" is 5 and "300px" is 300. Values out of range are clamped,
// and anything without leading digits falls back to the default.
func parseFeedParams(r *http.Request) feedParams {
	query := r.URL.Query()

	return feedParams{
		Limit:      clampedInt(query.Get("limit"), defaultLimit, minLimit, maxLimit),
		TLDRLength: clampedInt(query.Get("tldr"), feed.DefaultTLDRLength, feed.MinTLDRLength, feed.MaxTLDRLength),
	}
}

func clampedInt(raw string, def, lo, hi int) int {
	n, ok := leadingInt(raw)
	if !ok {
		return def
	}

	return min(max(n, lo), hi)
}

// leadingInt parses the optionally signed run of digits at the start of s, ignoring
// whatever follows. Overflow saturates.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Only a range error is possible here.
		n = math.MaxInt
	}
	if neg {
		n = -n
	}

	return n, true
}
