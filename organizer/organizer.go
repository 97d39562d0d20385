// Package organizer fans an image out into every category collection and
// folder it belongs to.
package organizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/classification"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

// Store is the category collection storage the organizer writes to.
type Store interface {
	AddImage(ctx context.Context, dest models.Destination, rec models.ImageRecord) (bool, error)
	RemoveImage(ctx context.Context, filename string) ([]models.Destination, error)
	FindImage(ctx context.Context, filename string) (models.ImageRecord, []models.Destination, error)
	UpdateImage(ctx context.Context, rec models.ImageRecord) error
}

// Classifier produces AutoTags for an image.
type Classifier interface {
	Classify(ctx context.Context, in classification.Input) (classification.Result, error)
}

// DestinationError is the failure of a single destination.
type DestinationError struct {
	Destination models.Destination `json:"destination"`
	Error       string             `json:"error"`
}

// SyncResult lists the destinations an image was newly added to and the
// destinations that failed.
type SyncResult struct {
	AddedTo []models.Destination `json:"addedTo"`
	Errors  []DestinationError   `json:"errors"`
}

// Err returns a PartialFanoutError when any destination failed.
func (r SyncResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return apperrors.NewPartialFanoutError(len(r.Errors), len(r.AddedTo)+len(r.Errors))
}

// Organizer keeps category collections and organized folders in step with
// image tags.
type Organizer struct {
	store        Store
	classifier   Classifier
	organizedDir string
	logger       *slog.Logger
}

// New creates an Organizer that copies organized files below organizedDir.
func New(store Store, classifier Classifier, organizedDir string, logger *slog.Logger) *Organizer {
	return &Organizer{
		store:        store,
		classifier:   classifier,
		organizedDir: organizedDir,
		logger:       logging.OrDefault(logger),
	}
}

// Destinations returns where an image with the given tags belongs: category
// folders in fixed order, then one folder per custom tag in input order.
// An image with no destination goes to uncategorized.
func Destinations(tags models.AutoTags, customTags []string) []models.Destination {
	var out []models.Destination
	if tags.Vehicle {
		out = append(out, models.DestinationVehicles)
	}
	if tags.Pets {
		out = append(out, models.DestinationPets)
	}
	if tags.Nature {
		out = append(out, models.DestinationNature)
	}
	if tags.HasPerson() {
		out = append(out, models.Destination(models.PeoplePrefix+*tags.PersonID))
	}

	seen := make(map[string]bool, len(customTags))
	for _, tag := range customTags {
		seg := tagSegment(tag)
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		out = append(out, models.Destination(models.TagsPrefix+seg))
	}

	if len(out) == 0 {
		out = append(out, models.DestinationUncategorized)
	}
	return out
}

// tagSegment turns a custom tag into a single safe path segment.
func tagSegment(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.NewReplacer("/", "-", "\\", "-").Replace(tag)
	if tag == "." || tag == ".." {
		return ""
	}
	return tag
}

// Sync adds rec to every destination it belongs to. Images already present in
// a destination are left untouched. Failures are collected per destination.
func (o *Organizer) Sync(ctx context.Context, rec models.ImageRecord) SyncResult {
	res := SyncResult{AddedTo: []models.Destination{}, Errors: []DestinationError{}}

	for _, dest := range Destinations(rec.AutoTags, rec.Tags) {
		added, err := o.store.AddImage(ctx, dest, rec)
		if err != nil {
			o.logger.Error("Failed to sync image", "filename", rec.Filename, "destination", dest, "error", err)
			res.Errors = append(res.Errors, DestinationError{Destination: dest, Error: err.Error()})
			continue
		}
		if added {
			res.AddedTo = append(res.AddedTo, dest)
		}
	}
	return res
}

// Remove pulls filename out of every collection.
func (o *Organizer) Remove(ctx context.Context, filename string) ([]models.Destination, error) {
	removed, err := o.store.RemoveImage(ctx, filename)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("Removed image", "filename", filename, "destinations", removed)
	return removed, nil
}

// Retag removes filename from every collection, classifies it again with the
// new custom tags and syncs the result. The returned record is not organized;
// stale folder copies are the caller's to clean up.
func (o *Organizer) Retag(ctx context.Context, filename string, customTags []string) (models.ImageRecord, SyncResult, error) {
	rec, _, err := o.store.FindImage(ctx, filename)
	if err != nil {
		return models.ImageRecord{}, SyncResult{}, err
	}
	if _, err := o.Remove(ctx, filename); err != nil {
		return models.ImageRecord{}, SyncResult{}, err
	}

	next, err := o.Reclassify(ctx, rec, customTags)
	if err != nil {
		// Put the previous record back so the image is not lost.
		o.Sync(ctx, rec)
		return models.ImageRecord{}, SyncResult{}, err
	}
	return next, o.Sync(ctx, next), nil
}

// Reclassify returns rec with fresh AutoTags for the given custom tags. It
// does not touch storage.
func (o *Organizer) Reclassify(ctx context.Context, rec models.ImageRecord, customTags []string) (models.ImageRecord, error) {
	res, err := o.classifier.Classify(ctx, classification.Input{
		ImagePath:  rec.Filepath,
		Filename:   rec.Filename,
		Embedding:  rec.Embedding,
		CustomTags: customTags,
	})
	if err != nil {
		return models.ImageRecord{}, fmt.Errorf("reclassify %s: %w", rec.Filename, err)
	}

	rec.Tags = CleanTags(customTags)
	rec.AutoTags = res.AutoTags
	rec.Organized = false
	rec.OrganizedPaths = []string{}
	return rec, nil
}

// CleanTags trims tags and drops empty ones.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
