package embeddings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider produces embedding vectors.
type Provider interface {
	// EmbedQuery embeds a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments embeds several texts, one vector per text in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector length for the configured model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderTEI       = "tei"
	ProviderFastEmbed = "fastembed"
)

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "openai", "tei" or "fastembed".
	Provider string
	Model    string
	// BaseURL overrides the API endpoint (openai) or points at the server (tei).
	BaseURL string
	APIKey  string
	// Dimension overrides the dimension derived from the model name.
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// RateLimit is calls per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	// Instrument wraps the provider with OpenTelemetry spans and metrics.
	Instrument bool
	Logger     *zap.Logger
}

// NewProvider creates an embedding provider from cfg.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim, _ = DimensionForModel(cfg.Model)
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		p, err = NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: dim,
		})
	case ProviderTEI:
		var svc *Service
		svc, err = NewService(Config{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey})
		if err == nil {
			p = &teiProvider{Service: svc, dimension: dim}
		}
	case ProviderFastEmbed:
		p, err = NewFastEmbedProvider(ctx, FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if p.Dimension() <= 0 {
		measured, err := measureDimension(ctx, p, cfg.Model)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p = measured
	}

	if cfg.RateLimit > 0 {
		p = NewRateLimited(p, cfg.RateLimit, cfg.Burst)
	}
	if cfg.Instrument {
		logger := cfg.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		p = NewInstrumented(p, cfg.Model, NewMetrics(logger), nil)
	}
	return p, nil
}

// DimensionForModel returns the embedding dimension for a known model name.
// It reports false for models it does not know.
func DimensionForModel(model string) (int, bool) {
	if dim, ok := knownDimensions[model]; ok {
		return dim, true
	}
	return fastEmbedModelDimension(model)
}

// dimensionSample is embedded once at startup when the model's width is not
// known.
const dimensionSample = "dimension check"

// measureDimension learns the vector width by embedding one short text.
func measureDimension(ctx context.Context, p Provider, model string) (Provider, error) {
	vec, err := p.EmbedQuery(ctx, dimensionSample)
	if err != nil {
		return nil, fmt.Errorf("%w: model %q has no known dimension and measuring it failed, set embeddings.dimension: %v",
			ErrInvalidConfig, model, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: model %q returned an empty vector, set embeddings.dimension", ErrInvalidConfig, model)
	}
	return &measuredProvider{Provider: p, dimension: len(vec)}, nil
}

// measuredProvider reports a dimension measured from a live embedding.
type measuredProvider struct {
	Provider
	dimension int
}

func (p *measuredProvider) Dimension() int { return p.dimension }

// teiProvider adds Dimension and Close to Service.
type teiProvider struct {
	*Service
	dimension int
}

func (t *teiProvider) Dimension() int { return t.dimension }

// Close is a no-op: TEI is reached over HTTP.
func (t *teiProvider) Close() error { return nil }
