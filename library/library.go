// Package library implements the request-level photo flows: ingesting
// uploads, retagging, organizing, deleting and the bulk rebuilds.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/classification"
	"github.com/pablobfonseca/go-photo-organizer/identity"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/models"
	"github.com/pablobfonseca/go-photo-organizer/organizer"
	"github.com/pablobfonseca/go-photo-organizer/services"
)

// Repository is the storage the library needs on top of the organizer's.
type Repository interface {
	organizer.Store
	ListImages(ctx context.Context) ([]models.ImageRecord, error)
	ListDocuments(ctx context.Context, withImages bool) ([]models.CategoryDocument, error)
	GetDocument(ctx context.Context, dest models.Destination) (models.CategoryDocument, error)
	SaveIdentity(ctx context.Context, position int, id models.PersonIdentity) error
	LoadIdentities(ctx context.Context) ([]models.PersonIdentity, error)
	ClearIdentities(ctx context.Context) error
}

// Options configure a Library.
type Options struct {
	UploadsDir   string
	OrganizedDir string
	Logger       *slog.Logger
}

// Library runs every flow against one repository, registry and organizer.
type Library struct {
	repo       Repository
	classifier organizer.Classifier
	registry   *identity.Registry
	embedder   services.EmbeddingSource
	organizer  *organizer.Organizer
	uploadsDir string
	logger     *slog.Logger

	// bulk serializes Reprocess and Reorganize.
	bulk sync.Mutex
}

// New creates a Library. classifier is usually a *classification.Engine
// sharing registry.
func New(repo Repository, classifier organizer.Classifier, registry *identity.Registry, embedder services.EmbeddingSource, opts Options) *Library {
	l := &Library{
		repo:       repo,
		classifier: classifier,
		registry:   registry,
		embedder:   embedder,
		uploadsDir: opts.UploadsDir,
		logger:     logging.OrDefault(opts.Logger),
	}
	l.organizer = organizer.New(repo, identityRecorder{l}, opts.OrganizedDir, l.logger)
	return l
}

// identityRecorder classifies and persists every newly minted identity.
type identityRecorder struct {
	l *Library
}

func (r identityRecorder) Classify(ctx context.Context, in classification.Input) (classification.Result, error) {
	res, err := r.l.classifier.Classify(ctx, in)
	if err != nil {
		return res, err
	}
	if res.NewPerson && res.AutoTags.HasPerson() {
		r.l.persistIdentity(ctx, *res.AutoTags.PersonID)
	}
	return res, nil
}

func (l *Library) persistIdentity(ctx context.Context, personID string) {
	id, ok := l.registry.Lookup(personID)
	if !ok {
		return
	}
	position, ok := identity.ParsePersonID(personID)
	if !ok {
		position = l.registry.Len()
	}
	if err := l.repo.SaveIdentity(ctx, position, id); err != nil {
		l.logger.Warn("Failed to persist person identity", "person_id", personID, "error", err)
	}
}

// Restore loads persisted identities into the registry.
func (l *Library) Restore(ctx context.Context) error {
	ids, err := l.repo.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	if err := l.registry.Restore(ids); err != nil {
		return err
	}
	l.logger.Info("Restored person identities", "count", len(ids))
	return nil
}

// Upload is a new image as received from a client.
type Upload struct {
	OriginalName string
	Content      io.Reader
	Tags         []string
	// Embedding is optional; one is generated when empty.
	Embedding []float64
}

// IngestResult is the stored record and where it was fanned out to.
type IngestResult struct {
	Image  models.ImageRecord   `json:"image"`
	Source string               `json:"source"`
	Sync   organizer.SyncResult `json:"sync"`
}

// Ingest stores an upload, classifies it and syncs it into its collections.
// A partial sync is reported through the result, not the error.
func (l *Library) Ingest(ctx context.Context, up Upload) (IngestResult, error) {
	name := filepath.Base(strings.TrimSpace(up.OriginalName))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return IngestResult{}, apperrors.NewValidationError("image", "a file name is required")
	}
	if !services.IsImageFile(name) {
		return IngestResult{}, apperrors.NewValidationError("image", fmt.Sprintf("unsupported image type: %s", name))
	}

	if err := os.MkdirAll(l.uploadsDir, 0755); err != nil {
		return IngestResult{}, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	filename := fmt.Sprintf("%d_%s", time.Now().UnixNano(), strings.ReplaceAll(name, " ", "_"))
	path := filepath.Join(l.uploadsDir, filename)
	size, err := saveFile(path, up.Content)
	if err != nil {
		return IngestResult{}, err
	}

	embedding := up.Embedding
	if len(embedding) == 0 {
		embedding, err = l.embedder.Embed(ctx, path, name)
		if err != nil {
			os.Remove(path)
			return IngestResult{}, fmt.Errorf("generate embedding for %s: %w", name, err)
		}
	}

	tags := organizer.CleanTags(up.Tags)
	res, err := identityRecorder{l}.Classify(ctx, classification.Input{
		ImagePath:  path,
		Filename:   filename,
		Embedding:  embedding,
		CustomTags: tags,
	})
	if err != nil {
		os.Remove(path)
		return IngestResult{}, err
	}

	rec := models.ImageRecord{
		Filename:       filename,
		OriginalName:   name,
		Filepath:       path,
		Mimetype:       services.DetectMimeType(name),
		Size:           size,
		Embedding:      embedding,
		Tags:           tags,
		AutoTags:       res.AutoTags,
		OrganizedPaths: []string{},
		UploadedAt:     time.Now().UTC(),
	}
	synced := l.organizer.Sync(ctx, rec)

	l.logger.Info("Image ingested",
		"filename", filename,
		"source", res.Source,
		"destinations", len(synced.AddedTo),
		"errors", len(synced.Errors),
	)
	return IngestResult{Image: rec, Source: res.Source, Sync: synced}, nil
}

func saveFile(path string, content io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to save file: %w", err)
	}
	n, err := io.Copy(out, content)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed while copying file: %w", err)
	}
	return n, nil
}

// ImageDetail is one image and the destinations holding it.
type ImageDetail struct {
	Image        models.ImageRecord   `json:"image"`
	Destinations []models.Destination `json:"destinations"`
}

// List returns every image once, oldest upload first.
func (l *Library) List(ctx context.Context) ([]models.ImageRecord, error) {
	return l.repo.ListImages(ctx)
}

// Get returns one image.
func (l *Library) Get(ctx context.Context, filename string) (ImageDetail, error) {
	rec, dests, err := l.repo.FindImage(ctx, filename)
	if err != nil {
		return ImageDetail{}, err
	}
	return ImageDetail{Image: rec, Destinations: dests}, nil
}

// Categories returns every category document without image bodies.
func (l *Library) Categories(ctx context.Context) ([]models.CategoryDocument, error) {
	return l.repo.ListDocuments(ctx, false)
}

// Category returns one category document with its images.
func (l *Library) Category(ctx context.Context, key string) (models.CategoryDocument, error) {
	return l.repo.GetDocument(ctx, models.Destination(key))
}

// Person is a known identity and how many images it has.
type Person struct {
	PersonID   string `json:"personId"`
	ImageCount int    `json:"imageCount"`
}

// Persons lists known identities in first-seen order.
func (l *Library) Persons(ctx context.Context) ([]Person, error) {
	docs, err := l.repo.ListDocuments(ctx, false)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(docs))
	for _, d := range docs {
		if id, ok := strings.CutPrefix(d.Key, models.PeoplePrefix); ok {
			counts[id] = d.ImageCount
		}
	}

	ids := l.registry.List()
	out := make([]Person, len(ids))
	for i, id := range ids {
		out[i] = Person{PersonID: id, ImageCount: counts[id]}
	}
	return out, nil
}

// Delete removes an image from every collection, its organized copies and
// its uploaded file.
func (l *Library) Delete(ctx context.Context, filename string) ([]models.Destination, error) {
	rec, _, err := l.repo.FindImage(ctx, filename)
	if err != nil {
		return nil, err
	}
	removed, err := l.organizer.Remove(ctx, filename)
	if err != nil {
		return nil, err
	}

	if err := l.organizer.RemoveCopies(rec.OrganizedPaths); err != nil {
		l.logger.Warn("Failed to delete organized copies", "filename", filename, "error", err)
	}
	if err := os.Remove(rec.Filepath); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to delete uploaded file", "filename", filename, "error", err)
	}

	l.logger.Info("Image deleted", "filename", filename, "destinations", len(removed))
	return removed, nil
}

// RetagResult is the outcome of a retag. Organize is set when the image had
// been organized and was organized again.
type RetagResult struct {
	Image    models.ImageRecord        `json:"image"`
	Sync     organizer.SyncResult      `json:"sync"`
	Organize *organizer.OrganizeResult `json:"organize,omitempty"`
}

// Retag replaces an image's custom tags. Previously organized images have
// their old copies removed and are organized into the new destinations.
func (l *Library) Retag(ctx context.Context, filename string, tags []string) (RetagResult, error) {
	prev, _, err := l.repo.FindImage(ctx, filename)
	if err != nil {
		return RetagResult{}, err
	}

	rec, synced, err := l.organizer.Retag(ctx, filename, tags)
	if err != nil {
		return RetagResult{}, err
	}
	res := RetagResult{Image: rec, Sync: synced}
	if !prev.Organized {
		return res, nil
	}

	if err := l.organizer.RemoveCopies(prev.OrganizedPaths); err != nil {
		l.logger.Warn("Failed to delete stale organized copies", "filename", filename, "error", err)
	}
	rec, org, err := l.organizer.Organize(ctx, rec)
	if err != nil {
		return res, err
	}
	res.Image = rec
	res.Organize = &org
	return res, nil
}

// Organize copies one image into its destination folders.
func (l *Library) Organize(ctx context.Context, filename string) (organizer.OrganizeResult, error) {
	_, res, err := l.organizer.OrganizeImage(ctx, filename)
	return res, err
}

// ItemError is the failure of one image in a bulk run.
type ItemError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BulkResult summarizes a bulk run.
type BulkResult struct {
	Processed int         `json:"processed"`
	Failed    []ItemError `json:"failed"`
	Persons   int         `json:"persons"`
}

// Reprocess forgets every identity and classifies every image again, one at
// a time in upload order. Person ids are reassigned from person_0001.
// Once the identity table has been cleared the run ignores ctx cancellation
// and always visits every image.
func (l *Library) Reprocess(ctx context.Context) (BulkResult, error) {
	l.bulk.Lock()
	defer l.bulk.Unlock()

	images, err := l.repo.ListImages(ctx)
	if err != nil {
		return BulkResult{}, err
	}

	snapshot := l.registry.Snapshot()
	if err := l.repo.ClearIdentities(ctx); err != nil {
		l.restoreIdentities(snapshot)
		return BulkResult{}, fmt.Errorf("clear identities: %w", err)
	}
	l.registry.Reset()

	ctx = context.WithoutCancel(ctx)
	res := BulkResult{Failed: []ItemError{}}
	for _, rec := range images {
		if err := l.reprocessOne(ctx, rec); err != nil {
			l.logger.Error("Failed to reprocess image", "filename", rec.Filename, "error", err)
			res.Failed = append(res.Failed, ItemError{Filename: rec.Filename, Error: err.Error()})
			continue
		}
		res.Processed++
	}
	res.Persons = l.registry.Len()

	l.logger.Info("Reprocess finished", "processed", res.Processed, "failed", len(res.Failed), "persons", res.Persons)
	return res, nil
}

// restoreIdentities puts snapshot back into the registry and the store
// after a reprocess that could not start.
func (l *Library) restoreIdentities(snapshot []models.PersonIdentity) {
	if err := l.registry.Restore(snapshot); err != nil {
		l.logger.Error("Failed to restore person identities", "error", err)
		return
	}
	ctx := context.Background()
	for _, id := range snapshot {
		l.persistIdentity(ctx, id.PersonID)
	}
}

func (l *Library) reprocessOne(ctx context.Context, rec models.ImageRecord) error {
	if _, err := l.organizer.Remove(ctx, rec.Filename); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	next, err := l.organizer.Reclassify(ctx, rec, rec.Tags)
	if err != nil {
		l.organizer.Sync(ctx, rec)
		return err
	}
	if err := l.organizer.Sync(ctx, next).Err(); err != nil {
		return err
	}

	if rec.Organized {
		if err := l.organizer.RemoveCopies(rec.OrganizedPaths); err != nil {
			l.logger.Warn("Failed to delete stale organized copies", "filename", rec.Filename, "error", err)
		}
		_, org, err := l.organizer.Organize(ctx, next)
		if err != nil {
			return err
		}
		return org.Err()
	}
	return nil
}

// Reorganize clears the organized folder and organizes every image again,
// one at a time in upload order.
func (l *Library) Reorganize(ctx context.Context) (BulkResult, error) {
	l.bulk.Lock()
	defer l.bulk.Unlock()

	images, err := l.repo.ListImages(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	if err := l.organizer.Reset(); err != nil {
		return BulkResult{}, err
	}

	// The folder is empty now; finish the rebuild even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	res := BulkResult{Failed: []ItemError{}}
	for _, rec := range images {
		_, org, err := l.organizer.Organize(ctx, rec)
		if err == nil {
			err = org.Err()
		}
		if err != nil {
			l.logger.Error("Failed to reorganize image", "filename", rec.Filename, "error", err)
			res.Failed = append(res.Failed, ItemError{Filename: rec.Filename, Error: err.Error()})
			continue
		}
		res.Processed++
	}
	res.Persons = l.registry.Len()

	l.logger.Info("Reorganize finished", "processed", res.Processed, "failed", len(res.Failed))
	return res, nil
}
