package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// CategoryDocument is one category collection entry, e.g. the "pets"
// document or the "people/person_0003" document.
type CategoryDocument struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Collection     string          `gorm:"index;not null" json:"collection"`
	Key            string          `gorm:"uniqueIndex;not null" json:"categoryKey"`
	SampleImageURL string          `json:"sampleImageUrl"`
	ImageCount     int             `gorm:"not null;default:0" json:"imageCount"`
	FirstSeen      time.Time       `json:"firstSeen"`
	LastSeen       time.Time       `json:"lastSeen"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Images         []CategoryImage `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

func (CategoryDocument) TableName() string {
	return "category_documents"
}

// CategoryImage is an ImageRecord embedded in a CategoryDocument. Filename is
// unique within a document.
type CategoryImage struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	DocumentID     uint      `gorm:"uniqueIndex:idx_document_filename;not null" json:"-"`
	Filename       string    `gorm:"uniqueIndex:idx_document_filename;index:idx_category_images_filename;not null" json:"filename"`
	OriginalName   string    `json:"originalName"`
	Filepath       string    `json:"filepath"`
	Mimetype       string    `json:"mimetype"`
	Size           int64     `json:"size"`
	Embedding      []float64 `gorm:"serializer:json" json:"embedding,omitempty"`
	Tags           []string  `gorm:"serializer:json" json:"tags"`
	AutoTags       AutoTags  `gorm:"serializer:json" json:"autoTags"`
	Organized      bool      `json:"organized"`
	OrganizedPaths []string  `gorm:"serializer:json" json:"organizedPaths"`
	UploadedAt     time.Time `json:"uploadedAt"`
}

func (CategoryImage) TableName() string {
	return "category_images"
}

// NewCategoryImage copies rec into a row owned by documentID.
func NewCategoryImage(documentID uint, rec ImageRecord) CategoryImage {
	return CategoryImage{
		DocumentID:     documentID,
		Filename:       rec.Filename,
		OriginalName:   rec.OriginalName,
		Filepath:       rec.Filepath,
		Mimetype:       rec.Mimetype,
		Size:           rec.Size,
		Embedding:      rec.Embedding,
		Tags:           rec.Tags,
		AutoTags:       rec.AutoTags,
		Organized:      rec.Organized,
		OrganizedPaths: rec.OrganizedPaths,
		UploadedAt:     rec.UploadedAt,
	}
}

// Record converts the row back into an ImageRecord.
func (c CategoryImage) Record() ImageRecord {
	return ImageRecord{
		Filename:       c.Filename,
		OriginalName:   c.OriginalName,
		Filepath:       c.Filepath,
		Mimetype:       c.Mimetype,
		Size:           c.Size,
		Embedding:      c.Embedding,
		Tags:           c.Tags,
		AutoTags:       c.AutoTags,
		Organized:      c.Organized,
		OrganizedPaths: c.OrganizedPaths,
		UploadedAt:     c.UploadedAt,
	}
}

// PersonSignature persists a minted person identity so the registry can be
// restored after a restart. Position preserves first-seen order.
type PersonSignature struct {
	PersonID  string          `gorm:"primaryKey" json:"personId"`
	Position  int             `gorm:"index;not null" json:"position"`
	Signature pgvector.Vector `gorm:"type:vector(8)" json:"signature"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (PersonSignature) TableName() string {
	return "person_signatures"
}

// NewPersonSignature converts an identity into its persisted form.
func NewPersonSignature(position int, id PersonIdentity) PersonSignature {
	vec := make([]float32, len(id.Signature))
	for i, v := range id.Signature {
		vec[i] = float32(v)
	}
	return PersonSignature{
		PersonID:  id.PersonID,
		Position:  position,
		Signature: pgvector.NewVector(vec),
	}
}

// Identity converts the row back into a PersonIdentity.
func (p PersonSignature) Identity() PersonIdentity {
	src := p.Signature.Slice()
	sig := make([]float64, len(src))
	for i, v := range src {
		sig[i] = float64(v)
	}
	return PersonIdentity{PersonID: p.PersonID, Signature: sig}
}
