package organizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/classification"
	"github.com/pablobfonseca/go-photo-organizer/classifier"
	"github.com/pablobfonseca/go-photo-organizer/config"
	"github.com/pablobfonseca/go-photo-organizer/database"
	"github.com/pablobfonseca/go-photo-organizer/identity"
	"github.com/pablobfonseca/go-photo-organizer/models"
	"github.com/pablobfonseca/go-photo-organizer/services"
)

type fixture struct {
	repo      *database.CategoryRepository
	engine    *classification.Engine
	org       *Organizer
	uploads   string
	organized string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Connect(&config.Config{DBDriver: config.DriverSQLite, SQLitePath: filepath.Join(dir, "test.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		repo:      database.NewCategoryRepository(db, "/uploads"),
		uploads:   filepath.Join(dir, "uploads"),
		organized: filepath.Join(dir, "organized"),
	}
	require.NoError(t, os.MkdirAll(f.uploads, 0755))
	f.engine = classification.NewEngine(classifier.NewKeywordClassifier(), identity.NewRegistry(identity.DefaultThreshold), nil,
		classification.Options{HashFallback: true, Logger: logger})
	f.org = New(f.repo, f.engine, f.organized, logger)
	return f
}

// ingest writes a file and classifies it the way an upload does.
func (f *fixture) ingest(t *testing.T, filename string, tags ...string) models.ImageRecord {
	t.Helper()
	path := filepath.Join(f.uploads, filename)
	require.NoError(t, os.WriteFile(path, []byte("image:"+filename), 0644))

	rec := models.ImageRecord{
		Filename:       filename,
		OriginalName:   filename,
		Filepath:       path,
		Mimetype:       services.DetectMimeType(filename),
		Embedding:      services.PseudoEmbedding(filename, 128),
		Tags:           CleanTags(tags),
		OrganizedPaths: []string{},
		UploadedAt:     time.Now(),
	}
	res, err := f.engine.Classify(context.Background(), classification.Input{
		ImagePath: path, Filename: filename, Embedding: rec.Embedding, CustomTags: tags,
	})
	require.NoError(t, err)
	rec.AutoTags = res.AutoTags
	return rec
}

func TestDestinations(t *testing.T) {
	id := "person_0003"
	tags := models.AutoTags{Vehicle: true, Pets: true, Nature: true, PersonID: &id}

	got := Destinations(tags, []string{"holiday", " ", "2024/summer", "holiday", ".."})
	assert.Equal(t, []models.Destination{
		"vehicles", "pets", "nature", "people/person_0003", "tags/holiday", "tags/2024-summer",
	}, got)

	assert.Equal(t, []models.Destination{"uncategorized"}, Destinations(models.AutoTags{}, nil))
	assert.Equal(t, []models.Destination{"tags/x"}, Destinations(models.AutoTags{}, []string{"x"}))
}

func TestDestinations_MultiLabel(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "my_dog_in_the_car.jpg")

	dests := Destinations(rec.AutoTags, rec.Tags)
	assert.Contains(t, dests, models.DestinationVehicles)
	assert.Contains(t, dests, models.DestinationPets)
}

func TestSync_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.ingest(t, "my_dog_in_the_car.jpg", "roadtrip")

	first := f.org.Sync(ctx, rec)
	require.NoError(t, first.Err())
	assert.Equal(t, []models.Destination{"vehicles", "pets", "tags/roadtrip"}, first.AddedTo)

	second := f.org.Sync(ctx, rec)
	require.NoError(t, second.Err())
	assert.Empty(t, second.AddedTo)

	docs, err := f.repo.ListDocuments(ctx, true)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for _, doc := range docs {
		assert.Equal(t, 1, doc.ImageCount, doc.Key)
		assert.Len(t, doc.Images, 1, doc.Key)
	}
}

func TestRemove_Symmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.org.Sync(ctx, f.ingest(t, "my_dog_in_the_car.jpg")).Err())
	require.NoError(t, f.org.Sync(ctx, f.ingest(t, "tesla.jpg")).Err())

	removed, err := f.org.Remove(ctx, "my_dog_in_the_car.jpg")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Destination{"vehicles", "pets"}, removed)

	docs, err := f.repo.ListDocuments(ctx, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "vehicles", docs[0].Key)
	for _, img := range docs[0].Images {
		assert.NotEqual(t, "my_dog_in_the_car.jpg", img.Filename)
	}

	_, err = f.org.Remove(ctx, "my_dog_in_the_car.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRetag_MovesBetweenDestinations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.org.Sync(ctx, f.ingest(t, "tesla.jpg")).Err())

	rec, res, err := f.org.Retag(ctx, "tesla.jpg", []string{"dog", "favorites"})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.True(t, rec.AutoTags.Pets)
	assert.False(t, rec.AutoTags.Vehicle)
	assert.Equal(t, []string{"dog", "favorites"}, rec.Tags)
	assert.Equal(t, []models.Destination{"pets", "tags/dog", "tags/favorites"}, res.AddedTo)

	_, dests, err := f.repo.FindImage(ctx, "tesla.jpg")
	require.NoError(t, err)
	assert.Equal(t, []models.Destination{"pets", "tags/dog", "tags/favorites"}, dests)

	_, err = f.repo.GetDocument(ctx, models.DestinationVehicles)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRetag_NotFound(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.org.Retag(context.Background(), "missing.jpg", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRoundTrip_FamilyBirthdayParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.ingest(t, "family_birthday_party.jpg")
	require.NotNil(t, rec.AutoTags.PersonID)
	assert.Contains(t, rec.AutoTags.Objects, "portrait")

	personID := *rec.AutoTags.PersonID
	dests := Destinations(rec.AutoTags, rec.Tags)
	assert.Equal(t, []models.Destination{models.Destination("people/" + personID)}, dests)

	require.NoError(t, f.org.Sync(ctx, rec).Err())

	organized, res, err := f.org.Organize(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Len(t, organized.OrganizedPaths, 1)
	assert.True(t, organized.Organized)

	want, err := filepath.Abs(filepath.Join(f.organized, "people", personID, "family_birthday_party.jpg"))
	require.NoError(t, err)
	assert.Equal(t, want, organized.OrganizedPaths[0])
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "image:family_birthday_party.jpg", string(data))

	stored, _, err := f.repo.FindImage(ctx, "family_birthday_party.jpg")
	require.NoError(t, err)
	assert.Equal(t, organized.OrganizedPaths, stored.OrganizedPaths)

	_, err = f.org.Remove(ctx, "family_birthday_party.jpg")
	require.NoError(t, err)
	require.NoError(t, f.org.RemoveCopies(organized.OrganizedPaths))

	_, err = os.Stat(want)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(filepath.Join(f.organized, "people"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "empty folders are pruned")

	docs, err := f.repo.ListDocuments(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestOrganize_PartialFailureContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.ingest(t, "my_dog_in_the_car.jpg")
	require.NoError(t, f.org.Sync(ctx, rec).Err())

	// A file where the vehicles folder should be makes that destination fail.
	require.NoError(t, os.MkdirAll(f.organized, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.organized, "vehicles"), []byte("x"), 0644))

	organized, res, err := f.org.Organize(ctx, rec)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err(), apperrors.ErrPartialFanout)

	require.Len(t, res.Placements, 2)
	assert.Equal(t, models.DestinationVehicles, res.Placements[0].Destination)
	assert.NotEmpty(t, res.Placements[0].Error)
	assert.Equal(t, models.DestinationPets, res.Placements[1].Destination)
	assert.NotEmpty(t, res.Placements[1].Path)

	assert.True(t, organized.Organized)
	assert.Len(t, organized.OrganizedPaths, 1)
}

// failingStore fails every AddImage for one destination.
type failingStore struct {
	Store
	failFor models.Destination
}

func (s failingStore) AddImage(ctx context.Context, dest models.Destination, rec models.ImageRecord) (bool, error) {
	if dest == s.failFor {
		return false, errors.New("disk full")
	}
	return s.Store.AddImage(ctx, dest, rec)
}

func TestSync_PartialFailureContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := New(failingStore{Store: f.repo, failFor: models.DestinationVehicles}, f.engine, f.organized, nil)

	res := org.Sync(ctx, f.ingest(t, "my_dog_in_the_car.jpg"))
	assert.Equal(t, []models.Destination{"pets"}, res.AddedTo)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, models.DestinationVehicles, res.Errors[0].Destination)
	assert.Equal(t, "disk full", res.Errors[0].Error)

	var partial *apperrors.PartialFanoutError
	require.True(t, errors.As(res.Err(), &partial))
	assert.Equal(t, 1, partial.Failed)
	assert.Equal(t, 2, partial.Attempted)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.organized, "pets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.organized, "pets", "a.jpg"), []byte("a"), 0644))

	require.NoError(t, f.org.Reset())

	entries, err := os.ReadDir(f.organized)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
