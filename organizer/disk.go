package organizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

// Placement is the outcome of copying an image into one destination folder:
// either Path or Error is set.
type Placement struct {
	Destination models.Destination `json:"destination"`
	Path        string             `json:"path,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// OrganizeResult lists one Placement per destination, in destination order.
type OrganizeResult struct {
	Filename   string      `json:"filename"`
	Placements []Placement `json:"placements"`
}

// Err returns a PartialFanoutError when any placement failed.
func (r OrganizeResult) Err() error {
	failed := 0
	for _, p := range r.Placements {
		if p.Error != "" {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return apperrors.NewPartialFanoutError(failed, len(r.Placements))
}

// Organize copies rec's file into the folder of every destination and
// records the copies on the stored record. A failing destination does not
// stop the others; earlier copies are kept.
func (o *Organizer) Organize(ctx context.Context, rec models.ImageRecord) (models.ImageRecord, OrganizeResult, error) {
	res := OrganizeResult{Filename: rec.Filename}
	paths := []string{}

	for _, dest := range Destinations(rec.AutoTags, rec.Tags) {
		path, err := o.place(rec, dest)
		if err != nil {
			o.logger.Error("Failed to organize image", "filename", rec.Filename, "destination", dest, "error", err)
			res.Placements = append(res.Placements, Placement{Destination: dest, Error: err.Error()})
			continue
		}
		res.Placements = append(res.Placements, Placement{Destination: dest, Path: path})
		paths = append(paths, path)
	}

	rec.OrganizedPaths = paths
	rec.Organized = len(paths) > 0
	if err := o.store.UpdateImage(ctx, rec); err != nil {
		return rec, res, fmt.Errorf("record organized paths for %s: %w", rec.Filename, err)
	}

	o.logger.Info("Organized image", "filename", rec.Filename, "copies", len(paths))
	return rec, res, nil
}

// OrganizeImage looks up filename and organizes it.
func (o *Organizer) OrganizeImage(ctx context.Context, filename string) (models.ImageRecord, OrganizeResult, error) {
	rec, _, err := o.store.FindImage(ctx, filename)
	if err != nil {
		return models.ImageRecord{}, OrganizeResult{}, err
	}
	return o.Organize(ctx, rec)
}

// TargetPath is where rec is copied for dest.
func (o *Organizer) TargetPath(dest models.Destination, filename string) string {
	return filepath.Join(o.organizedDir, filepath.FromSlash(dest.String()), filepath.Base(filename))
}

func (o *Organizer) place(rec models.ImageRecord, dest models.Destination) (string, error) {
	target, err := filepath.Abs(o.TargetPath(dest, rec.Filename))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	if err := copyFile(rec.Filepath, target); err != nil {
		return "", fmt.Errorf("copy %s: %w", rec.Filename, err)
	}
	return target, nil
}

// RemoveCopies deletes previously organized copies and any folders they
// leave empty. Missing files are ignored.
func (o *Organizer) RemoveCopies(paths []string) error {
	root, err := filepath.Abs(o.organizedDir)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		pruneEmpty(filepath.Dir(p), root)
	}
	return errors.Join(errs...)
}

// Reset removes every organized copy and recreates an empty organized folder.
func (o *Organizer) Reset() error {
	if err := os.RemoveAll(o.organizedDir); err != nil {
		return fmt.Errorf("clear organized folder: %w", err)
	}
	return os.MkdirAll(o.organizedDir, 0755)
}

// pruneEmpty removes dir and its parents while they are empty, stopping at root.
func pruneEmpty(dir, root string) {
	for dir != root && len(dir) > len(root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// copyFile copies src to dst, replacing dst if it exists.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
