package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pablobfonseca/go-photo-organizer/classifier"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

type fakeOllama struct {
	tagCalls      atomic.Int32
	generateCalls atomic.Int32
	// failFirst makes the next n generate calls answer 503.
	failFirst atomic.Int32

	models      []string
	generate    string
	generateErr bool
	embedding   []float64
	lastRequest OllamaRequest
	mu          sync.Mutex
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.tagCalls.Add(1)
		time.Sleep(20 * time.Millisecond)
		var resp ollamaTagsResponse
		for _, m := range f.models {
			resp.Models = append(resp.Models, struct {
				Name string `json:"name"`
			}{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.generateCalls.Add(1)
		if f.failFirst.Add(-1) >= 0 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		var req OllamaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastRequest = req
		failing, answer := f.generateErr, f.generate
		f.mu.Unlock()
		if failing {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": answer})
	})
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaResponse{Embedding: f.embedding})
	})
	return mux
}

func newFakeServer(t *testing.T, f *fakeOllama) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewOllamaClient(OllamaClientOptions{
		BaseURL:        srv.URL + "/api",
		Model:          "llava",
		EmbeddingModel: "nomic-embed-text",
		Timeout:        5 * time.Second,
		RetryMax:       2,
		RetryWaitMin:   time.Millisecond,
	})
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

func TestKeywordLabelSource(t *testing.T) {
	src := NewKeywordLabelSource(classifier.NewKeywordClassifier())

	assert.True(t, src.Initialize(context.Background()))
	assert.True(t, src.IsReady())
	assert.Empty(t, src.Classify(context.Background(), "", "IMG_0001.jpg"))

	matches := src.Classify(context.Background(), "", "my_dog_in_the_car.jpg")
	require.Len(t, matches, 2)
	assert.Equal(t, models.CategoryVehicle, matches[0].Category)
	assert.Equal(t, models.CategoryPet, matches[1].Category)
}

func TestOllamaLabelSource_ConcurrentInitializeChecksOnce(t *testing.T) {
	f := &fakeOllama{models: []string{"llava:latest"}}
	src := NewOllamaLabelSource(newFakeServer(t, f), 8, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, src.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, src.IsReady())
	assert.Equal(t, int32(1), f.tagCalls.Load())

	assert.True(t, src.Initialize(context.Background()))
	assert.Equal(t, int32(1), f.tagCalls.Load())
}

func TestOllamaLabelSource_MissingModelNotReady(t *testing.T) {
	f := &fakeOllama{models: []string{"mistral:7b"}}
	src := NewOllamaLabelSource(newFakeServer(t, f), 8, nil)

	assert.False(t, src.Initialize(context.Background()))
	assert.False(t, src.IsReady())
	assert.Nil(t, src.Classify(context.Background(), writeImage(t, "a.jpg"), "a.jpg"))
}

func TestOllamaLabelSource_Classify(t *testing.T) {
	f := &fakeOllama{
		models:   []string{"llava"},
		generate: `{"categories":[{"category":"Pet","confidence":1.4,"subType":"Dog"},{"category":"pet","confidence":0.2},{"category":"building","confidence":0.9},{"category":"vehicle","confidence":0.61}]}`,
	}
	src := NewOllamaLabelSource(newFakeServer(t, f), 8, nil)
	require.True(t, src.Initialize(context.Background()))

	matches := src.Classify(context.Background(), writeImage(t, "dog.jpg"), "dog.jpg")
	assert.Equal(t, []models.CategoryMatch{
		{Category: models.CategoryPet, Confidence: 1, SubType: "dog"},
		{Category: models.CategoryVehicle, Confidence: 0.61},
	}, matches)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "json", f.lastRequest.Format)
	assert.Len(t, f.lastRequest.Images, 1)
	assert.Contains(t, f.lastRequest.Prompt, `"dog.jpg"`)
}

func TestOllamaLabelSource_CachesAnswers(t *testing.T) {
	f := &fakeOllama{
		models:   []string{"llava"},
		generate: `{"categories":[{"category":"nature","confidence":0.8}]}`,
	}
	src := NewOllamaLabelSource(newFakeServer(t, f), 8, nil)
	require.True(t, src.Initialize(context.Background()))
	path := writeImage(t, "lake.jpg")

	first := src.Classify(context.Background(), path, "lake.jpg")
	second := src.Classify(context.Background(), path, "lake.jpg")
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.generateCalls.Load())
	assert.Equal(t, 1, src.cache.entries())
}

func TestOllamaLabelSource_FailsSoft(t *testing.T) {
	f := &fakeOllama{models: []string{"llava"}, generateErr: true}
	src := NewOllamaLabelSource(newFakeServer(t, f), 8, nil)
	require.True(t, src.Initialize(context.Background()))

	assert.Nil(t, src.Classify(context.Background(), writeImage(t, "x.jpg"), "x.jpg"))
	assert.Nil(t, src.Classify(context.Background(), "/does/not/exist.jpg", "exist.jpg"))

	f.mu.Lock()
	f.generateErr = false
	f.generate = "not json"
	f.mu.Unlock()
	assert.Nil(t, src.Classify(context.Background(), writeImage(t, "y.jpg"), "y.jpg"))
}

func TestPseudoEmbedding_Deterministic(t *testing.T) {
	a := PseudoEmbedding("family_birthday_party.jpg", 128)
	b := PseudoEmbedding("family_birthday_party.jpg", 128)
	c := PseudoEmbedding("other.jpg", 128)

	assert.Len(t, a, 128)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
}

func TestOllamaEmbedder(t *testing.T) {
	f := &fakeOllama{generate: "a dog in a park", embedding: []float64{0.1, 0.2, 0.3}}
	emb := NewOllamaEmbedder(newFakeServer(t, f), rate.NewLimiter(rate.Inf, 1), 8)
	path := writeImage(t, "dog.jpg")

	got, err := emb.Embed(context.Background(), path, "dog.jpg")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)

	again, err := emb.Embed(context.Background(), path, "dog.jpg")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), f.generateCalls.Load())
}

func TestOllamaEmbedder_LimiterHonoursContext(t *testing.T) {
	f := &fakeOllama{generate: "a cat", embedding: []float64{1}}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())
	emb := NewOllamaEmbedder(newFakeServer(t, f), limiter, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := emb.Embed(ctx, writeImage(t, "cat.jpg"), "cat.jpg")
	assert.Error(t, err)
	assert.Zero(t, f.generateCalls.Load())
}

func TestOllamaClient_RetriesUnavailable(t *testing.T) {
	f := &fakeOllama{generate: "ok"}
	f.failFirst.Store(2)
	client := newFakeServer(t, f)

	text, err := client.Generate(context.Background(), "hi", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), f.generateCalls.Load())

	f.failFirst.Store(5)
	_, err = client.Generate(context.Background(), "hi", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string, string) ([]float64, error) {
	return nil, errors.New("offline")
}

func TestFallbackEmbedder(t *testing.T) {
	f := &FallbackEmbedder{Primary: failingEmbedder{}, Fallback: NewPseudoEmbedder(16)}
	got, err := f.Embed(context.Background(), "", "cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, PseudoEmbedding("cat.jpg", 16), got)

	f = &FallbackEmbedder{Primary: failingEmbedder{}, Fallback: failingEmbedder{}}
	_, err = f.Embed(context.Background(), "", "cat.jpg")
	assert.Error(t, err)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", DetectMimeType("a.JPG"))
	assert.Equal(t, "image/png", DetectMimeType("b.png"))
	assert.True(t, IsImageFile("c.webp"))
	assert.False(t, IsImageFile("notes.txt"))
}
