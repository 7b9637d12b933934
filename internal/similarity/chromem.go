package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/autobooks/internal/model"
	"github.com/philippgille/chromem-go"
)

// DefaultCollection holds confirmed document patterns.
const DefaultCollection = "patterns"

const (
	metaVendor        = "vendor"
	metaDebitAccount  = "debit_account"
	metaCreditAccount = "credit_account"
	metaCategory      = "category"
	metaTDSApplicable = "tds_applicable"
	metaLearnedAt     = "learned_at"
)

// ChromemGateway is a Gateway and Indexer over an embedded chromem-go database.
// Each vendor has one document, so relearning a vendor replaces its pattern.
type ChromemGateway struct {
	collection *chromem.Collection
	logger     *slog.Logger
}

// Option configures a ChromemGateway.
type Option func(*options)

type options struct {
	collection string
}

// WithCollection stores patterns in the named collection instead of DefaultCollection.
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// OpenChromem opens (or creates) a persistent pattern database at dir.
func OpenChromem(dir string, embedder Embedder, logger *slog.Logger, opts ...Option) (*ChromemGateway, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create similarity directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open similarity database: %w", err)
	}
	return NewChromemGateway(db, embedder, logger, opts...)
}

// NewChromemGateway uses an existing database, such as chromem.NewDB() in tests.
func NewChromemGateway(db *chromem.DB, embedder Embedder, logger *slog.Logger, opts ...Option) (*ChromemGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{collection: DefaultCollection}
	for _, opt := range opts {
		opt(&o)
	}
	collection, err := db.GetOrCreateCollection(o.collection, nil, embedder.Embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", o.collection, err)
	}
	return &ChromemGateway{collection: collection, logger: logger}, nil
}

// Count returns the number of indexed patterns.
func (g *ChromemGateway) Count() int {
	return g.collection.Count()
}

// Index stores or replaces the pattern for p.Vendor.
func (g *ChromemGateway) Index(ctx context.Context, p Pattern) error {
	key := model.NormalizeVendor(p.Vendor)
	if key == "" {
		return fmt.Errorf("pattern vendor is required")
	}
	learnedAt := p.LearnedAt
	if learnedAt.IsZero() {
		learnedAt = time.Now()
	}

	content := queryText(p.Vendor, p.Text+" "+strings.Join(p.Keywords, " "))
	doc := chromem.Document{
		ID:      key,
		Content: content,
		Metadata: map[string]string{
			metaVendor:        p.Vendor,
			metaDebitAccount:  p.Classification.DebitAccount,
			metaCreditAccount: p.Classification.CreditAccount,
			metaCategory:      p.Classification.Category,
			metaTDSApplicable: strconv.FormatBool(p.Classification.TDSApplicable),
			metaLearnedAt:     learnedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := g.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index pattern for %q: %w", p.Vendor, err)
	}

	g.logger.Debug("Indexed pattern", "vendor", key, "patterns", g.collection.Count())
	return nil
}

// Forget removes the pattern for vendor. Forgetting an unknown vendor is a no-op.
func (g *ChromemGateway) Forget(ctx context.Context, vendor string) error {
	key := model.NormalizeVendor(vendor)
	if key == "" {
		return fmt.Errorf("pattern vendor is required")
	}
	if err := g.collection.Delete(ctx, nil, nil, key); err != nil {
		return fmt.Errorf("failed to forget pattern for %q: %w", vendor, err)
	}
	return nil
}

// ForgetEverywhere removes vendor's pattern from every collection in the
// database at dir, whichever embedder learned it.
func ForgetEverywhere(ctx context.Context, dir, vendor string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return fmt.Errorf("failed to open similarity database: %w", err)
	}
	for name, collection := range db.ListCollections() {
		g := &ChromemGateway{collection: collection, logger: slog.Default()}
		if err := g.Forget(ctx, vendor); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
	}
	return nil
}

// Query returns up to k nearest patterns. An empty collection yields no matches.
func (g *ChromemGateway) Query(ctx context.Context, vendor, text string, k int) ([]Match, error) {
	count := g.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	q := queryText(vendor, text)
	if q == "" {
		return nil, nil
	}

	results, err := g.collection.Query(ctx, q, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m, err := matchFromMetadata(r.Metadata)
		if err != nil {
			g.logger.Warn("Skipping malformed pattern", "id", r.ID, "error", err)
			continue
		}
		m.Distance = 1 - float64(r.Similarity)
		if m.Distance < 0 {
			m.Distance = 0
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches, nil
}

func matchFromMetadata(meta map[string]string) (Match, error) {
	tdsApplicable, err := strconv.ParseBool(meta[metaTDSApplicable])
	if err != nil {
		return Match{}, fmt.Errorf("invalid %s: %w", metaTDSApplicable, err)
	}
	learnedAt, err := time.Parse(time.RFC3339Nano, meta[metaLearnedAt])
	if err != nil {
		return Match{}, fmt.Errorf("invalid %s: %w", metaLearnedAt, err)
	}
	m := Match{
		Vendor:    meta[metaVendor],
		LearnedAt: learnedAt,
		Classification: model.Classification{
			DebitAccount:  meta[metaDebitAccount],
			CreditAccount: meta[metaCreditAccount],
			Category:      meta[metaCategory],
			TDSApplicable: tdsApplicable,
		},
	}
	if m.Classification.IsZero() {
		return Match{}, fmt.Errorf("pattern has no accounts")
	}
	return m, nil
}
