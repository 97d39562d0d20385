package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"golang.org/x/time/rate"
)

// EmbeddingSource produces an embedding for an uploaded image.
type EmbeddingSource interface {
	Embed(ctx context.Context, imagePath, filename string) ([]float64, error)
}

// PseudoEmbedder derives a deterministic vector from the filename alone. The
// same filename always yields the same vector.
type PseudoEmbedder struct {
	Dimensions int
}

// NewPseudoEmbedder creates an embedder producing vectors of the given length.
func NewPseudoEmbedder(dimensions int) *PseudoEmbedder {
	return &PseudoEmbedder{Dimensions: dimensions}
}

func (p *PseudoEmbedder) Embed(_ context.Context, _ string, filename string) ([]float64, error) {
	return PseudoEmbedding(filename, p.Dimensions), nil
}

// PseudoEmbedding returns n values in [-1, 1) seeded by an FNV-64a hash of filename.
func PseudoEmbedding(filename string, n int) []float64 {
	h := fnv.New64a()
	h.Write([]byte(filename))
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

const describePrompt = "Describe the people, animals, places and objects in this image in a few plain sentences."

// OllamaEmbedder describes the image with the vision model and embeds the
// description with the embedding model. Requests wait on limiter when it is
// set, and results are cached per image path.
type OllamaEmbedder struct {
	client  *OllamaClient
	limiter *rate.Limiter
	cache   *loaderCache[[]float64]
}

// NewOllamaEmbedder creates an embedder backed by client. limiter may be nil.
func NewOllamaEmbedder(client *OllamaClient, limiter *rate.Limiter, cacheSize int) *OllamaEmbedder {
	return &OllamaEmbedder{
		client:  client,
		limiter: limiter,
		cache:   newLoaderCache[[]float64](cacheSize),
	}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, imagePath, _ string) ([]float64, error) {
	return o.cache.get(ctx, imagePath, func(ctx context.Context) ([]float64, error) {
		return o.embed(ctx, imagePath)
	})
}

func (o *OllamaEmbedder) embed(ctx context.Context, imagePath string) ([]float64, error) {
	image, err := encodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	text, err := o.client.Generate(ctx, describePrompt, []string{image}, "")
	if err != nil {
		return nil, fmt.Errorf("describe image: %w", err)
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	embedding, err := o.client.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed description: %w", err)
	}
	return embedding, nil
}

// FallbackEmbedder tries Primary and uses Fallback when it fails.
type FallbackEmbedder struct {
	Primary  EmbeddingSource
	Fallback EmbeddingSource
}

func (f *FallbackEmbedder) Embed(ctx context.Context, imagePath, filename string) ([]float64, error) {
	embedding, err := f.Primary.Embed(ctx, imagePath, filename)
	if err == nil {
		return embedding, nil
	}
	fallback, ferr := f.Fallback.Embed(ctx, imagePath, filename)
	if ferr != nil {
		return nil, fmt.Errorf("embedding failed: %w (fallback: %v)", err, ferr)
	}
	return fallback, nil
}
