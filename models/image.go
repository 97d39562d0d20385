package models

import "time"

// ImageRecord is the full metadata of one uploaded image. A copy of it is
// embedded in every category document the image is fanned into.
type ImageRecord struct {
	Filename       string    `json:"filename"`
	OriginalName   string    `json:"originalName"`
	Filepath       string    `json:"filepath"`
	Mimetype       string    `json:"mimetype"`
	Size           int64     `json:"size"`
	Embedding      []float64 `json:"embedding,omitempty"`
	Tags           []string  `json:"tags"`
	AutoTags       AutoTags  `json:"autoTags"`
	Organized      bool      `json:"organized"`
	OrganizedPaths []string  `json:"organizedPaths"`
	UploadedAt     time.Time `json:"uploadedAt"`
}

// PersonIdentity ties a stable person id to its embedding signature.
type PersonIdentity struct {
	PersonID  string    `json:"personId"`
	Signature []float64 `json:"signature"`
}
