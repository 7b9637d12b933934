// Package similarity finds previously confirmed documents that resemble a new one.
package similarity

import (
	"context"
	"strings"
	"time"

	"github.com/Veraticus/autobooks/internal/model"
)

// Match is a historical pattern returned by a similarity query.
// Distance is 1 - cosine similarity; lower is closer.
type Match struct {
	LearnedAt      time.Time
	Vendor         string
	Classification model.Classification
	Distance       float64
}

// Pattern is a confirmed document indexed for future lookups.
type Pattern struct {
	LearnedAt      time.Time
	Vendor         string
	Text           string
	Classification model.Classification
	Keywords       []string
}

// Gateway searches historical patterns. Results are sorted by ascending distance.
type Gateway interface {
	Query(ctx context.Context, vendor, text string, k int) ([]Match, error)
}

// Indexer stores confirmed patterns so later queries can find them.
type Indexer interface {
	Index(ctx context.Context, p Pattern) error
}

// queryText is the string embedded for both documents and queries so the two
// sides of a comparison are built the same way.
func queryText(vendor, text string) string {
	return strings.TrimSpace(model.NormalizeVendor(vendor) + " " + strings.ToLower(strings.TrimSpace(text)))
}

// Best picks the closest match under acceptance. Equal distances prefer the
// most recently learned pattern. The bool is false when nothing qualifies.
func Best(matches []Match, acceptance float64) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, m := range matches {
		if m.Distance >= acceptance {
			continue
		}
		if !found || m.Distance < best.Distance ||
			(m.Distance == best.Distance && m.LearnedAt.After(best.LearnedAt)) {
			best = m
			found = true
		}
	}
	return best, found
}
