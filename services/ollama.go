package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type OllamaEndpoint string

const (
	GenerateEndpoint  OllamaEndpoint = "generate"
	EmbeddingEndpoint OllamaEndpoint = "embeddings"
	TagsEndpoint      OllamaEndpoint = "tags"
)

type OllamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
	Format string   `json:"format,omitempty"`
}

type OllamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaClientOptions configures an OllamaClient.
type OllamaClientOptions struct {
	// BaseURL is the API root, e.g. http://localhost:11434/api
	BaseURL        string
	Model          string
	EmbeddingModel string
	// Timeout bounds a single attempt (default: 60 seconds)
	Timeout time.Duration
	// RetryMax is the number of retries after a failed attempt (default: 3)
	RetryMax int
	// RetryWaitMin is the first backoff between attempts (default: 200ms)
	RetryWaitMin time.Duration
}

// OllamaClient talks to an Ollama server's HTTP API.
type OllamaClient struct {
	baseURL        string
	model          string
	embeddingModel string
	httpClient     *retryablehttp.Client
}

// NewOllamaClient creates a client; zero options take their defaults.
func NewOllamaClient(opts OllamaClientOptions) *OllamaClient {
	if opts.Model == "" {
		opts.Model = "gemma3"
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "nomic-embed-text"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 200 * time.Millisecond
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = 10 * opts.RetryWaitMin
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	return &OllamaClient{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		httpClient:     retryClient,
	}
}

// Model returns the vision model name.
func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) url(endpoint OllamaEndpoint) string {
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

func (c *OllamaClient) post(ctx context.Context, endpoint OllamaEndpoint, body any) (*http.Response, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url(endpoint), requestBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama at %s: %w", c.url(endpoint), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama %s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// Generate runs a non-streaming completion, optionally with images
// (base64) and a response format such as "json".
func (c *OllamaClient) Generate(ctx context.Context, prompt string, images []string, format string) (string, error) {
	resp, err := c.post(ctx, GenerateEndpoint, OllamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: images,
		Format: format,
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if response, ok := result["response"]; ok {
		switch v := response.(type) {
		case string:
			return v, nil
		case bool, float64, int:
			return fmt.Sprintf("%v", v), nil
		default:
			return "", fmt.Errorf("unexpected response type: %T", v)
		}
	}

	return "", fmt.Errorf("no response field in API result")
}

// Embed returns the text embedding of text using the embedding model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.post(ctx, EmbeddingEndpoint, OllamaRequest{
		Model:  c.embeddingModel,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return result.Embedding, nil
}

// ListModels returns the names of the models installed on the server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url(TagsEndpoint), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama at %s: %w", c.url(TagsEndpoint), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// encodeImage reads the file at path as base64.
func encodeImage(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(imageBytes), nil
}
