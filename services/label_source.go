package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/pablobfonseca/go-photo-organizer/classifier"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

// LabelSource proposes categories for an image. Classify fails soft: any
// internal error yields an empty result.
type LabelSource interface {
	Name() string
	Initialize(ctx context.Context) bool
	IsReady() bool
	Classify(ctx context.Context, imagePath, filenameHint string) []models.CategoryMatch
}

// KeywordLabelSource adapts the filename keyword classifier. It is always ready.
type KeywordLabelSource struct {
	keywords *classifier.KeywordClassifier
}

// NewKeywordLabelSource wraps k.
func NewKeywordLabelSource(k *classifier.KeywordClassifier) *KeywordLabelSource {
	return &KeywordLabelSource{keywords: k}
}

func (s *KeywordLabelSource) Name() string { return "keyword" }

func (s *KeywordLabelSource) Initialize(context.Context) bool { return true }

func (s *KeywordLabelSource) IsReady() bool { return true }

// Classify ignores the image and matches filenameHint; "other" is dropped.
func (s *KeywordLabelSource) Classify(_ context.Context, _ string, filenameHint string) []models.CategoryMatch {
	var out []models.CategoryMatch
	for _, m := range s.keywords.Classify(filenameHint) {
		if m.Category != models.CategoryOther {
			out = append(out, m)
		}
	}
	return out
}

const classifyPrompt = `You label photos for a photo library. Decide which of these categories appear in the image: person, pet, nature, vehicle.
An image can belong to several categories or none. The original filename was %q and may be a hint.
Respond only with JSON of the form {"categories":[{"category":"pet","confidence":0.92,"subType":"dog"}]}.
Use an empty list when none apply.`

type ollamaLabels struct {
	Categories []struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		SubType    string  `json:"subType"`
	} `json:"categories"`
}

// OllamaLabelSource asks a vision model served by Ollama for categories.
// Initialize checks the model is installed; concurrent callers during
// warm-up share one check. Answers are cached per image so reprocessing
// does not ask the model again.
type OllamaLabelSource struct {
	client *OllamaClient
	logger *slog.Logger
	ready  atomic.Bool
	group  singleflight.Group
	cache  *loaderCache[[]models.CategoryMatch]
}

// NewOllamaLabelSource creates a label source backed by client that keeps
// up to cacheSize answers.
func NewOllamaLabelSource(client *OllamaClient, cacheSize int, logger *slog.Logger) *OllamaLabelSource {
	return &OllamaLabelSource{
		client: client,
		logger: logging.OrDefault(logger),
		cache:  newLoaderCache[[]models.CategoryMatch](cacheSize),
	}
}

func (s *OllamaLabelSource) Name() string { return "ollama" }

func (s *OllamaLabelSource) IsReady() bool { return s.ready.Load() }

// Initialize is idempotent and safe to call from many goroutines; only one
// model check is in flight at a time.
func (s *OllamaLabelSource) Initialize(ctx context.Context) bool {
	if s.ready.Load() {
		return true
	}

	v, _, _ := s.group.Do("init", func() (any, error) {
		if s.ready.Load() {
			return true, nil
		}
		names, err := s.client.ListModels(ctx)
		if err != nil {
			s.logger.Warn("Ollama label source unavailable", "error", err)
			return false, nil
		}
		if !hasModel(names, s.client.Model()) {
			s.logger.Warn("Ollama model not installed", "model", s.client.Model())
			return false, nil
		}
		s.ready.Store(true)
		s.logger.Info("Ollama label source ready", "model", s.client.Model())
		return true, nil
	})
	ok, _ := v.(bool)
	return ok
}

func hasModel(installed []string, model string) bool {
	for _, name := range installed {
		if name == model || strings.TrimSuffix(name, ":latest") == model || strings.HasPrefix(name, model+":") {
			return true
		}
	}
	return false
}

// Classify returns the categories the model reports, or nothing when the
// source is not ready or anything fails.
func (s *OllamaLabelSource) Classify(ctx context.Context, imagePath, filenameHint string) []models.CategoryMatch {
	if !s.ready.Load() {
		return nil
	}

	matches, err := s.cache.get(ctx, imagePath+"\x00"+filenameHint, func(ctx context.Context) ([]models.CategoryMatch, error) {
		return s.label(ctx, imagePath, filenameHint)
	})
	if err != nil {
		s.logger.Warn("Ollama labelling failed", "filename", filenameHint, "error", err)
		return nil
	}
	return matches
}

func (s *OllamaLabelSource) label(ctx context.Context, imagePath, filenameHint string) ([]models.CategoryMatch, error) {
	image, err := encodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	text, err := s.client.Generate(ctx, fmt.Sprintf(classifyPrompt, filenameHint), []string{image}, "json")
	if err != nil {
		return nil, err
	}

	matches, err := parseLabels(text)
	if err != nil {
		return nil, fmt.Errorf("unparseable labels: %w", err)
	}
	return matches, nil
}

// parseLabels decodes the model's JSON answer, dropping unknown categories,
// duplicates and "other", and clamping confidences to [0,1].
func parseLabels(text string) ([]models.CategoryMatch, error) {
	var labels ollamaLabels
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &labels); err != nil {
		return nil, err
	}

	seen := make(map[models.Category]bool)
	var out []models.CategoryMatch
	for _, l := range labels.Categories {
		c, ok := models.ParseCategory(l.Category)
		if !ok || c == models.CategoryOther || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, models.CategoryMatch{
			Category:   c,
			Confidence: min(max(l.Confidence, 0), 1),
			SubType:    strings.ToLower(strings.TrimSpace(l.SubType)),
		})
	}
	return out, nil
}
