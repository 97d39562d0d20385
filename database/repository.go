package database

import (
	"context"
	"fmt"
	"path"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

// CategoryRepository stores the per-category collections. The same image may
// be embedded in several documents; filename is unique within a document.
type CategoryRepository struct {
	db              *gorm.DB
	sampleURLPrefix string
	now             func() time.Time
}

// NewCategoryRepository creates a repository. Sample image urls are built as
// sampleURLPrefix + "/" + filename.
func NewCategoryRepository(db *gorm.DB, sampleURLPrefix string) *CategoryRepository {
	if sampleURLPrefix == "" {
		sampleURLPrefix = "/uploads"
	}
	return &CategoryRepository{db: db, sampleURLPrefix: sampleURLPrefix, now: time.Now}
}

// AddImage appends rec to the document for dest, creating the document if it
// does not exist. It reports false without changes when the document already
// holds an image with the same filename.
func (r *CategoryRepository) AddImage(ctx context.Context, dest models.Destination, rec models.ImageRecord) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()

		doc := models.CategoryDocument{
			Collection: dest.Collection(),
			Key:        dest.String(),
			FirstSeen:  now,
			LastSeen:   now,
		}
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).Create(&doc).Error; err != nil {
			return fmt.Errorf("create document %s: %w", dest, err)
		}
		if err := tx.Where("key = ?", dest.String()).First(&doc).Error; err != nil {
			return fmt.Errorf("load document %s: %w", dest, err)
		}

		img := models.NewCategoryImage(doc.ID, rec)
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "filename"}},
			DoNothing: true,
		}).Create(&img)
		if res.Error != nil {
			return fmt.Errorf("add %s to %s: %w", rec.Filename, dest, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&models.CategoryDocument{}).Where("id = ?", doc.ID).Updates(map[string]any{
			"image_count":      gorm.Expr("image_count + ?", 1),
			"sample_image_url": path.Join(r.sampleURLPrefix, rec.Filename),
			"last_seen":        now,
			"updated_at":       now,
		}).Error; err != nil {
			return fmt.Errorf("update document %s: %w", dest, err)
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveImage pulls filename out of every document, decrements their counts
// and deletes documents left empty. It returns the destinations the image was
// removed from.
func (r *CategoryRepository) RemoveImage(ctx context.Context, filename string) ([]models.Destination, error) {
	var removed []models.Destination
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var docIDs []uint
		if err := tx.Model(&models.CategoryImage{}).Where("filename = ?", filename).Pluck("document_id", &docIDs).Error; err != nil {
			return err
		}
		if len(docIDs) == 0 {
			return apperrors.NewNotFoundError("image", filename)
		}

		var keys []string
		if err := tx.Model(&models.CategoryDocument{}).Where("id IN ?", docIDs).Order("key").Pluck("key", &keys).Error; err != nil {
			return err
		}

		if err := tx.Where("filename = ?", filename).Delete(&models.CategoryImage{}).Error; err != nil {
			return fmt.Errorf("remove %s: %w", filename, err)
		}
		if err := tx.Model(&models.CategoryDocument{}).Where("id IN ?", docIDs).Updates(map[string]any{
			"image_count": gorm.Expr("image_count - ?", 1),
			"updated_at":  r.now(),
		}).Error; err != nil {
			return fmt.Errorf("decrement counts: %w", err)
		}

		var empty []uint
		if err := tx.Model(&models.CategoryDocument{}).Where("id IN ? AND image_count <= 0", docIDs).Pluck("id", &empty).Error; err != nil {
			return err
		}
		if len(empty) > 0 {
			if err := tx.Where("document_id IN ?", empty).Delete(&models.CategoryImage{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", empty).Delete(&models.CategoryDocument{}).Error; err != nil {
				return fmt.Errorf("delete empty documents: %w", err)
			}
		}

		for _, k := range keys {
			removed = append(removed, models.Destination(k))
		}
		return nil
	})
	return removed, err
}

// FindImage returns the stored record for filename and the destinations
// holding it.
func (r *CategoryRepository) FindImage(ctx context.Context, filename string) (models.ImageRecord, []models.Destination, error) {
	var rows []models.CategoryImage
	if err := r.db.WithContext(ctx).Where("filename = ?", filename).Order("id").Find(&rows).Error; err != nil {
		return models.ImageRecord{}, nil, err
	}
	if len(rows) == 0 {
		return models.ImageRecord{}, nil, apperrors.NewNotFoundError("image", filename)
	}

	ids := make([]uint, len(rows))
	for i, row := range rows {
		ids[i] = row.DocumentID
	}
	var keys []string
	if err := r.db.WithContext(ctx).Model(&models.CategoryDocument{}).Where("id IN ?", ids).Order("key").Pluck("key", &keys).Error; err != nil {
		return models.ImageRecord{}, nil, err
	}

	dests := make([]models.Destination, len(keys))
	for i, k := range keys {
		dests[i] = models.Destination(k)
	}
	return rows[0].Record(), dests, nil
}

// UpdateImage rewrites every embedded copy of rec. AutoTags and embedding are
// left alone; changing those requires a remove and re-sync.
func (r *CategoryRepository) UpdateImage(ctx context.Context, rec models.ImageRecord) error {
	img := models.NewCategoryImage(0, rec)
	res := r.db.WithContext(ctx).Model(&models.CategoryImage{}).
		Where("filename = ?", rec.Filename).
		Select("original_name", "filepath", "mimetype", "size", "tags", "organized", "organized_paths").
		Updates(&img)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", rec.Filename, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("image", rec.Filename)
	}
	return nil
}

// ListImages returns one record per distinct filename, oldest upload first.
func (r *CategoryRepository) ListImages(ctx context.Context) ([]models.ImageRecord, error) {
	var rows []models.CategoryImage
	if err := r.db.WithContext(ctx).Order("uploaded_at, filename, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	records := make([]models.ImageRecord, 0, len(rows))
	for _, row := range rows {
		if seen[row.Filename] {
			continue
		}
		seen[row.Filename] = true
		records = append(records, row.Record())
	}
	return records, nil
}

// ListDocuments returns all category documents ordered by key, optionally
// with their embedded images.
func (r *CategoryRepository) ListDocuments(ctx context.Context, withImages bool) ([]models.CategoryDocument, error) {
	q := r.db.WithContext(ctx).Order("key")
	if withImages {
		q = q.Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
	}
	var docs []models.CategoryDocument
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument returns the document for dest with its images.
func (r *CategoryRepository) GetDocument(ctx context.Context, dest models.Destination) (models.CategoryDocument, error) {
	var doc models.CategoryDocument
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("key = ?", dest.String()).
		Take(&doc).Error
	if err == gorm.ErrRecordNotFound {
		return doc, apperrors.NewNotFoundError("category", dest.String())
	}
	return doc, err
}

// SaveIdentity persists a person signature at the given first-seen position.
func (r *CategoryRepository) SaveIdentity(ctx context.Context, position int, id models.PersonIdentity) error {
	row := models.NewPersonSignature(position, id)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// LoadIdentities returns persisted identities in first-seen order.
func (r *CategoryRepository) LoadIdentities(ctx context.Context) ([]models.PersonIdentity, error) {
	var rows []models.PersonSignature
	if err := r.db.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.PersonIdentity, len(rows))
	for i, row := range rows {
		out[i] = row.Identity()
	}
	return out, nil
}

// ClearIdentities deletes every persisted identity.
func (r *CategoryRepository) ClearIdentities(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PersonSignature{}).Error
}
