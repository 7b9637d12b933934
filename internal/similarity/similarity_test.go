package similarity

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rentClassification = model.Classification{
	DebitAccount:  "Rent Expense",
	CreditAccount: "Bank",
	Category:      "rent",
	TDSApplicable: true,
}

func newTestGateway(t *testing.T) *ChromemGateway {
	t.Helper()
	g, err := NewChromemGateway(chromem.NewDB(), NewHashEmbedder(0), nil)
	require.NoError(t, err)
	return g
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Acme Rentals monthly rent")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "acme rentals MONTHLY rent")
	require.NoError(t, err)
	require.Len(t, a, 64)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	_, err = e.Embed(ctx, " -- ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(EmbedderConfig{Kind: EmbedderHash})
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	_, err = NewEmbedder(EmbedderConfig{Kind: "magic"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = NewEmbedder(EmbedderConfig{Kind: EmbedderRemote})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	e, err = NewEmbedder(EmbedderConfig{Kind: EmbedderRemote, BaseURL: "http://localhost:8080/v1", Model: "bge-small"})
	require.NoError(t, err)
	assert.IsType(t, &RemoteEmbedder{}, e)

	_, err = NewEmbedder(EmbedderConfig{Kind: EmbedderFastEmbed, Model: "no-such-model"})
	assert.Error(t, err)
}

func stubFastEmbedder(t *testing.T, fn func(EmbedderConfig) (Embedder, error)) {
	t.Helper()
	orig := loadFastEmbedder
	loadFastEmbedder = fn
	t.Cleanup(func() { loadFastEmbedder = orig })
}

func TestOpenEmbedder(t *testing.T) {
	t.Run("fastembed is the default", func(t *testing.T) {
		var got EmbedderConfig
		stubFastEmbedder(t, func(cfg EmbedderConfig) (Embedder, error) {
			got = cfg
			return NewHashEmbedder(8), nil
		})

		_, used, err := OpenEmbedder(EmbedderConfig{CacheDir: "/tmp/models"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/models", got.CacheDir)
		assert.Equal(t, "patterns-fastembed-baai-bge-small-en-v1-5", used.Collection())
	})

	t.Run("unloadable model falls back to hash", func(t *testing.T) {
		stubFastEmbedder(t, func(EmbedderConfig) (Embedder, error) {
			return nil, errors.New("onnxruntime not found")
		})

		e, used, err := OpenEmbedder(EmbedderConfig{Kind: EmbedderFastEmbed, Dimensions: 64}, nil)
		require.NoError(t, err)
		assert.IsType(t, &HashEmbedder{}, e)
		assert.Equal(t, EmbedderHash, used.Kind)
		assert.Equal(t, "patterns-hash", used.Collection())
	})

	t.Run("unsupported model is a config error", func(t *testing.T) {
		stubFastEmbedder(t, func(EmbedderConfig) (Embedder, error) {
			return nil, common.ErrInvalidConfig
		})

		_, _, err := OpenEmbedder(EmbedderConfig{Kind: EmbedderFastEmbed, Model: "nope"}, nil)
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})

	t.Run("remote errors never fall back", func(t *testing.T) {
		_, _, err := OpenEmbedder(EmbedderConfig{Kind: EmbedderRemote}, nil)
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestEmbedderConfig_Collection(t *testing.T) {
	tests := []struct {
		cfg  EmbedderConfig
		want string
	}{
		{EmbedderConfig{}, "patterns-fastembed-baai-bge-small-en-v1-5"},
		{EmbedderConfig{Kind: "FastEmbed", Model: "fast-all-MiniLM-L6-v2"}, "patterns-fastembed-fast-all-minilm-l6-v2"},
		{EmbedderConfig{Kind: EmbedderRemote, Model: "nomic-embed-text"}, "patterns-remote-nomic-embed-text"},
		{EmbedderConfig{Kind: EmbedderHash, Model: "ignored"}, "patterns-hash"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.Collection())
	}
}

func TestChromemGateway_EmptyCollection(t *testing.T) {
	g := newTestGateway(t)
	matches, err := g.Query(context.Background(), "Acme Rentals", "rent", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemGateway_IndexAndQuery(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	learned := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, g.Index(ctx, Pattern{
		Vendor:         "Acme Rentals",
		Text:           "Monthly rent for office premises",
		Classification: rentClassification,
		Keywords:       []string{"rent", "premises"},
		LearnedAt:      learned,
	}))
	require.NoError(t, g.Index(ctx, Pattern{
		Vendor: "Globex Steel",
		Text:   "Steel girders delivery order",
		Classification: model.Classification{
			DebitAccount: "Materials", CreditAccount: "Bank",
		},
	}))
	assert.Equal(t, 2, g.Count())

	matches, err := g.Query(ctx, "ACME Rentals", "Monthly rent for office premises rent premises", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "Acme Rentals", matches[0].Vendor)
	assert.Equal(t, rentClassification, matches[0].Classification)
	assert.True(t, matches[0].LearnedAt.Equal(learned))
	assert.Less(t, matches[0].Distance, 0.05)
	assert.Greater(t, matches[1].Distance, 0.30)
	assert.LessOrEqual(t, matches[0].Distance, matches[1].Distance)
}

func TestChromemGateway_RelearnReplacesPattern(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Index(ctx, Pattern{Vendor: "Acme Rentals", Text: "rent", Classification: rentClassification}))
	updated := rentClassification
	updated.DebitAccount = "Office Rent"
	require.NoError(t, g.Index(ctx, Pattern{Vendor: "acme  rentals", Text: "rent", Classification: updated}))

	assert.Equal(t, 1, g.Count())
	matches, err := g.Query(ctx, "Acme Rentals", "rent", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Office Rent", matches[0].Classification.DebitAccount)
}

func TestChromemGateway_Forget(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Index(ctx, Pattern{Vendor: "Acme Rentals", Text: "rent", Classification: rentClassification}))
	require.NoError(t, g.Forget(ctx, "ACME rentals"))
	assert.Equal(t, 0, g.Count())

	require.NoError(t, g.Forget(ctx, "Nobody"))
	assert.Error(t, g.Forget(ctx, "  "))
}

func TestChromemGateway_IndexRequiresVendor(t *testing.T) {
	g := newTestGateway(t)
	assert.Error(t, g.Index(context.Background(), Pattern{Text: "rent", Classification: rentClassification}))
}

func TestOpenChromem_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	g, err := OpenChromem(dir, NewHashEmbedder(0), nil)
	require.NoError(t, err)
	require.NoError(t, g.Index(ctx, Pattern{Vendor: "Acme Rentals", Text: "rent", Classification: rentClassification}))

	reopened, err := OpenChromem(dir, NewHashEmbedder(0), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	other, err := OpenChromem(dir, NewHashEmbedder(0), nil, WithCollection("patterns-hash"))
	require.NoError(t, err)
	assert.Equal(t, 0, other.Count())
}

func TestForgetEverywhere(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	local, err := OpenChromem(dir, NewHashEmbedder(0), nil, WithCollection("patterns-fastembed-baai-bge-small-en-v1-5"))
	require.NoError(t, err)
	require.NoError(t, local.Index(ctx, Pattern{Vendor: "Acme Rentals", Text: "rent", Classification: rentClassification}))
	fallback, err := OpenChromem(dir, NewHashEmbedder(0), nil, WithCollection("patterns-hash"))
	require.NoError(t, err)
	require.NoError(t, fallback.Index(ctx, Pattern{Vendor: "Acme Rentals", Text: "rent", Classification: rentClassification}))
	require.NoError(t, fallback.Index(ctx, Pattern{Vendor: "Other Co", Text: "rent", Classification: rentClassification}))

	require.NoError(t, ForgetEverywhere(ctx, dir, "acme rentals"))

	reopened, err := OpenChromem(dir, NewHashEmbedder(0), nil, WithCollection("patterns-fastembed-baai-bge-small-en-v1-5"))
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Count())
	reopened, err = OpenChromem(dir, NewHashEmbedder(0), nil, WithCollection("patterns-hash"))
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	assert.NoError(t, ForgetEverywhere(ctx, filepath.Join(dir, "missing"), "acme rentals"))
}

func TestBest(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	tests := []struct {
		name    string
		want    string
		matches []Match
		found   bool
	}{
		{name: "empty"},
		{
			name:    "nothing under acceptance",
			matches: []Match{{Vendor: "a", Distance: 0.45}},
		},
		{
			name:    "boundary is exclusive",
			matches: []Match{{Vendor: "a", Distance: 0.30}},
		},
		{
			name: "lowest distance wins",
			matches: []Match{
				{Vendor: "far", Distance: 0.25, LearnedAt: newer},
				{Vendor: "near", Distance: 0.10, LearnedAt: older},
			},
			want:  "near",
			found: true,
		},
		{
			name: "tie prefers latest",
			matches: []Match{
				{Vendor: "old", Distance: 0.10, LearnedAt: older},
				{Vendor: "new", Distance: 0.10, LearnedAt: newer},
			},
			want:  "new",
			found: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Best(tt.matches, 0.30)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got.Vendor)
		})
	}
}

type stubGateway struct {
	err     error
	delay   time.Duration
	matches []Match
	indexed []Pattern
}

func (s *stubGateway) Query(ctx context.Context, _, _ string, _ int) ([]Match, error) {
	select {
	case <-time.After(s.delay):
		return s.matches, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubGateway) Index(_ context.Context, p Pattern) error {
	s.indexed = append(s.indexed, p)
	return nil
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("passes results through", func(t *testing.T) {
		g := WithTimeout(&stubGateway{matches: []Match{{Vendor: "a"}}}, time.Second)
		got, err := g.Query(ctx, "a", "", 3)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("slow gateway times out", func(t *testing.T) {
		g := WithTimeout(&stubGateway{delay: time.Second}, 20*time.Millisecond)
		start := time.Now()
		_, err := g.Query(ctx, "a", "", 3)
		assert.ErrorIs(t, err, common.ErrGatewayUnavailable)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("errors are marked unavailable", func(t *testing.T) {
		boom := errors.New("boom")
		g := WithTimeout(&stubGateway{err: boom}, time.Second)
		_, err := g.Query(ctx, "a", "", 3)
		assert.ErrorIs(t, err, common.ErrGatewayUnavailable)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("index passes through", func(t *testing.T) {
		stub := &stubGateway{}
		g := WithTimeout(stub, time.Second)
		idx, ok := g.(Indexer)
		require.True(t, ok)
		require.NoError(t, idx.Index(ctx, Pattern{Vendor: "a"}))
		assert.Len(t, stub.indexed, 1)
	})
}
