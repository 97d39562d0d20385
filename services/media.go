package services

import (
	"mime"
	"path/filepath"
	"strings"
)

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// IsImageFile reports whether filename has a supported image extension.
func IsImageFile(filename string) bool {
	_, ok := imageExts[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// DetectMimeType guesses the mimetype of filename from its extension.
func DetectMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := imageExts[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
