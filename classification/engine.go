// Package classification turns label source output into AutoTags, falling
// back through keyword matching and a hash bucket when nothing is detected.
package classification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/classifier"
	"github.com/pablobfonseca/go-photo-organizer/identity"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/models"
	"github.com/pablobfonseca/go-photo-organizer/services"
)

var errSourceNotReady = errors.New("not ready")

// Tier names reported in Result.Source.
const (
	SourceCustomTag = "custom-tag"
	SourceKeyword   = "keyword"
	SourceHash      = "hash"
	SourceNone      = "none"
)

// Input is everything the engine looks at for one image.
type Input struct {
	ImagePath  string
	Filename   string
	Embedding  []float64
	CustomTags []string
}

// Result is the classification of one image.
type Result struct {
	AutoTags   models.AutoTags
	Categories []models.CategoryMatch
	Source     string
	NewPerson  bool
}

// Options tune the engine.
type Options struct {
	// HashFallback assigns a hash-derived category when no tier detects anything.
	HashFallback bool
	Logger       *slog.Logger
}

// Engine classifies images. Classify is safe for concurrent use; person
// resolution is serialized by the registry.
type Engine struct {
	keywords     *classifier.KeywordClassifier
	registry     *identity.Registry
	source       services.LabelSource
	hashFallback bool
	logger       *slog.Logger
}

// NewEngine creates an engine. source may be nil, in which case only keyword
// matching and the hash fallback are used.
func NewEngine(keywords *classifier.KeywordClassifier, registry *identity.Registry, source services.LabelSource, opts Options) *Engine {
	return &Engine{
		keywords:     keywords,
		registry:     registry,
		source:       source,
		hashFallback: opts.HashFallback,
		logger:       logging.OrDefault(opts.Logger),
	}
}

var tagSynonyms = map[string]models.CategoryMatch{
	"person":    {Category: models.CategoryPerson},
	"people":    {Category: models.CategoryPerson},
	"portrait":  {Category: models.CategoryPerson},
	"selfie":    {Category: models.CategoryPerson},
	"family":    {Category: models.CategoryPerson},
	"friends":   {Category: models.CategoryPerson},
	"face":      {Category: models.CategoryPerson},
	"pet":       {Category: models.CategoryPet},
	"pets":      {Category: models.CategoryPet},
	"animal":    {Category: models.CategoryPet},
	"dog":       {Category: models.CategoryPet, SubType: "dog"},
	"cat":       {Category: models.CategoryPet, SubType: "cat"},
	"nature":    {Category: models.CategoryNature},
	"landscape": {Category: models.CategoryNature, SubType: "landscape"},
	"outdoor":   {Category: models.CategoryNature},
	"outdoors":  {Category: models.CategoryNature},
	"scenery":   {Category: models.CategoryNature},
	"vehicle":   {Category: models.CategoryVehicle},
	"vehicles":  {Category: models.CategoryVehicle},
	"car":       {Category: models.CategoryVehicle, SubType: "car"},
	"cars":      {Category: models.CategoryVehicle, SubType: "car"},
}

// ExplicitCategories returns the categories named by custom tags, one match
// per category, in canonical order.
func ExplicitCategories(tags []string) []models.CategoryMatch {
	found := make(map[models.Category]models.CategoryMatch)
	for _, tag := range tags {
		m, ok := tagSynonyms[strings.ToLower(strings.TrimSpace(tag))]
		if !ok {
			continue
		}
		if prev, seen := found[m.Category]; seen && prev.SubType != "" {
			continue
		}
		m.Confidence = 1
		found[m.Category] = m
	}

	var out []models.CategoryMatch
	for _, c := range models.Categories {
		if m, ok := found[c]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Classify runs the tiers in order: explicit custom tags, the label source,
// filename keywords, then the hash bucket. Label source failures only cause a
// fallback. The only error is an invalid embedding for an image that needs a
// person identity.
func (e *Engine) Classify(ctx context.Context, in Input) (Result, error) {
	matches, source := e.detect(ctx, in)

	res := Result{Categories: matches, Source: source}
	tags, created, err := e.merge(in, matches)
	if err != nil {
		return Result{}, fmt.Errorf("classify %s: %w", in.Filename, err)
	}
	res.AutoTags = tags
	res.NewPerson = created

	e.logger.Debug("Classified image",
		"filename", in.Filename,
		"source", source,
		"objects", tags.Objects,
	)
	return res, nil
}

func (e *Engine) detect(ctx context.Context, in Input) ([]models.CategoryMatch, string) {
	if explicit := ExplicitCategories(in.CustomTags); len(explicit) > 0 {
		return explicit, SourceCustomTag
	}

	if e.source != nil && e.source.Name() != SourceKeyword {
		matches, err := e.queryLabelSource(ctx, in)
		if err != nil {
			e.logger.Debug("Falling back to keyword matching", "filename", in.Filename, "error", err)
		} else if len(matches) > 0 {
			return matches, e.source.Name()
		}
	}

	if matches := withoutOther(e.keywords.Classify(in.Filename)); len(matches) > 0 {
		return matches, SourceKeyword
	}

	if e.hashFallback {
		c := HashBucket(in.Filename, in.Embedding)
		return []models.CategoryMatch{{Category: c, Confidence: 0}}, SourceHash
	}
	return nil, SourceNone
}

// queryLabelSource returns a LabelSourceUnavailableError when the source
// cannot be initialized; the caller treats it as a soft failure.
func (e *Engine) queryLabelSource(ctx context.Context, in Input) ([]models.CategoryMatch, error) {
	if !e.source.IsReady() && !e.source.Initialize(ctx) {
		return nil, apperrors.NewLabelSourceUnavailableError(e.source.Name(), errSourceNotReady)
	}
	return withoutOther(e.source.Classify(ctx, in.ImagePath, in.Filename)), nil
}

func withoutOther(matches []models.CategoryMatch) []models.CategoryMatch {
	var out []models.CategoryMatch
	for _, m := range matches {
		if m.Category != models.CategoryOther && m.Category != "" {
			out = append(out, m)
		}
	}
	return out
}

// merge folds matches into AutoTags. A person match resolves an identity.
func (e *Engine) merge(in Input, matches []models.CategoryMatch) (models.AutoTags, bool, error) {
	byCategory := make(map[models.Category]models.CategoryMatch, len(matches))
	for _, m := range matches {
		if _, ok := byCategory[m.Category]; !ok {
			byCategory[m.Category] = m
		}
	}

	tags := models.AutoTags{Objects: []string{}}
	var created bool
	for _, c := range models.Categories {
		m, ok := byCategory[c]
		if !ok {
			continue
		}
		switch c {
		case models.CategoryVehicle:
			tags.Vehicle = true
			tags.Objects = append(tags.Objects, models.ObjectVehicle)
		case models.CategoryPet:
			tags.Pets = true
			tags.Objects = append(tags.Objects, models.ObjectAnimal)
		case models.CategoryNature:
			tags.Nature = true
			tags.Objects = append(tags.Objects, models.ObjectLandscape, models.ObjectOutdoor)
		case models.CategoryPerson:
			id, minted, err := e.registry.Resolve(in.Embedding)
			if err != nil {
				return models.AutoTags{}, false, err
			}
			tags.PersonID = &id
			created = minted
			tags.Objects = append(tags.Objects, models.ObjectPortrait)
		}
		if m.SubType != "" {
			if tags.SubTypes == nil {
				tags.SubTypes = make(map[models.Category]string)
			}
			tags.SubTypes[c] = m.SubType
		}
	}

	if len(tags.Objects) == 0 {
		tags.Objects = append(tags.Objects, models.ObjectUncategorized)
	}
	return tags, created, nil
}
