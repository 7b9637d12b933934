package similarity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyInput is returned when a text has nothing to embed.
var ErrEmptyInput = errors.New("nothing to embed")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder kinds accepted by NewEmbedder.
const (
	EmbedderFastEmbed = "fastembed"
	EmbedderRemote    = "remote"
	EmbedderHash      = "hash"
)

// DefaultFastEmbedModel is the local model used when none is configured.
const DefaultFastEmbedModel = "BAAI/bge-small-en-v1.5"

// EmbedderConfig selects and configures an embedder.
type EmbedderConfig struct {
	Kind       string
	BaseURL    string
	Model      string
	APIKey     string
	CacheDir   string
	Dimensions int
}

// Collection names the chromem collection for vectors from this embedder, so
// switching embedders never compares vectors from different models.
func (c EmbedderConfig) Collection() string {
	kind := strings.ToLower(c.Kind)
	if kind == "" {
		kind = EmbedderFastEmbed
	}
	if kind == EmbedderHash {
		return DefaultCollection + "-" + kind
	}
	model := c.Model
	if model == "" && kind == EmbedderFastEmbed {
		model = DefaultFastEmbedModel
	}
	slug := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '-'
	}, model)
	return DefaultCollection + "-" + kind + "-" + slug
}

// loadFastEmbedder is replaced in tests to avoid loading a model.
var loadFastEmbedder = func(cfg EmbedderConfig) (Embedder, error) {
	return NewFastEmbedder(cfg)
}

// NewEmbedder builds the embedder named by cfg.Kind. An empty kind means fastembed.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", EmbedderFastEmbed:
		return loadFastEmbedder(cfg)
	case EmbedderRemote:
		return NewRemoteEmbedder(cfg)
	case EmbedderHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", common.ErrInvalidConfig, cfg.Kind)
	}
}

// OpenEmbedder is NewEmbedder for long-running use. When the local fastembed
// model cannot be loaded it falls back to the hash embedder with a warning. The returned config
// describes the embedder actually in use.
func OpenEmbedder(cfg EmbedderConfig, logger *slog.Logger) (Embedder, EmbedderConfig, error) {
	embedder, err := NewEmbedder(cfg)
	if err == nil {
		return embedder, cfg, nil
	}
	kind := strings.ToLower(cfg.Kind)
	if (kind != "" && kind != EmbedderFastEmbed) || errors.Is(err, common.ErrInvalidConfig) {
		return nil, cfg, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("Local embedding model unavailable, using hash embeddings",
		"model", cfg.Model,
		"error", err)
	fallback := EmbedderConfig{Kind: EmbedderHash, Dimensions: cfg.Dimensions}
	return NewHashEmbedder(cfg.Dimensions), fallback, nil
}

// HashEmbedder is an offline embedder using signed feature hashing over word
// tokens and character trigrams. Identical input always yields the identical
// unit vector. It needs no model files, which makes it the test embedder and
// the fallback when the fastembed model cannot be loaded.
type HashEmbedder struct {
	dims int
}

// DefaultHashDimensions is used when no dimension is configured.
const DefaultHashDimensions = 512

// NewHashEmbedder creates a hash embedder with dims buckets.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil, ErrEmptyInput
	}

	vec := make([]float64, h.dims)
	for _, tok := range tokens {
		h.add(vec, "w:"+tok, 1.0)
		padded := []rune("^" + tok + "$")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(vec, "t:"+string(padded[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dims)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	sum := fnv.New64a()
	_, _ = sum.Write([]byte(feature))
	v := sum.Sum64()
	idx := int(v % uint64(h.dims))
	if v&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint (OpenAI, TEI, Ollama).
type RemoteEmbedder struct {
	embedder embeddings.Embedder
	retry    common.RetryOptions
}

// NewRemoteEmbedder creates an embedder backed by langchaingo.
func NewRemoteEmbedder(cfg EmbedderConfig) (*RemoteEmbedder, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: remote embedder needs base_url and model", common.ErrInvalidConfig)
	}
	token := cfg.APIKey
	if token == "" {
		// Local servers ignore the token but the client requires one.
		token = "unused"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &RemoteEmbedder{
		embedder: embedder,
		retry: common.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
		},
	}, nil
}

// Embed implements Embedder.
func (r *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	var vec []float32
	err := common.WithRetry(ctx, func() error {
		var embedErr error
		vec, embedErr = r.embedder.EmbedQuery(ctx, text)
		if embedErr != nil && ctx.Err() != nil {
			return &common.RetryableError{Err: embedErr, Retryable: false}
		}
		return embedErr
	}, r.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	return vec, nil
}
