// Package handlers exposes the photo library over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pablobfonseca/go-photo-organizer/library"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/models"
	"github.com/pablobfonseca/go-photo-organizer/organizer"
	"github.com/pablobfonseca/go-photo-organizer/queue"
)

// Library is the set of flows the handlers expose.
type Library interface {
	Ingest(ctx context.Context, up library.Upload) (library.IngestResult, error)
	List(ctx context.Context) ([]models.ImageRecord, error)
	Get(ctx context.Context, filename string) (library.ImageDetail, error)
	Delete(ctx context.Context, filename string) ([]models.Destination, error)
	Retag(ctx context.Context, filename string, tags []string) (library.RetagResult, error)
	Organize(ctx context.Context, filename string) (organizer.OrganizeResult, error)
	Reprocess(ctx context.Context) (library.BulkResult, error)
	Reorganize(ctx context.Context) (library.BulkResult, error)
	Categories(ctx context.Context) ([]models.CategoryDocument, error)
	Category(ctx context.Context, key string) (models.CategoryDocument, error)
	Persons(ctx context.Context) ([]library.Person, error)
}

// TaskQueue accepts bulk tasks and reports on them.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, data map[string]any) (string, error)
	Task(ctx context.Context, taskID string) (queue.TaskInfo, error)
}

// Handler serves the library API.
type Handler struct {
	lib            Library
	tasks          TaskQueue
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a Handler. tasks may be nil, in which case bulk
// operations always run synchronously.
func NewHandler(lib Library, tasks TaskQueue, maxUploadMB int, logger *slog.Logger) *Handler {
	return &Handler{
		lib:            lib,
		tasks:          tasks,
		maxUploadBytes: int64(maxUploadMB) << 20,
		logger:         logging.OrDefault(logger),
	}
}

// Upload handles POST /upload
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
				fmt.Sprintf("Upload exceeds the %d MB limit", tooLarge.Limit>>20))
			return
		}
		RespondBadRequest(w, "Failed to read upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		RespondBadRequest(w, "Failed to upload file: "+err.Error())
		return
	}
	defer file.Close()

	embedding, err := parseEmbedding(r.FormValue("embedding"))
	if err != nil {
		RespondBadRequest(w, err.Error())
		return
	}

	res, err := h.lib.Ingest(r.Context(), library.Upload{
		OriginalName: header.Filename,
		Content:      file,
		Tags:         splitTags(r.FormValue("tags")),
		Embedding:    embedding,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondPartial(w, http.StatusCreated, res, res.Sync.Err())
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return organizer.CleanTags(strings.Split(raw, ","))
}

func parseEmbedding(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var embedding []float64
	if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
		return nil, fmt.Errorf("embedding must be a JSON array of numbers")
	}
	return embedding, nil
}

// ListImages handles GET /images
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.lib.List(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, images)
}

// GetImage handles GET /images/{filename}
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	detail, err := h.lib.Get(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, detail)
}

// DeleteImage handles DELETE /images/{filename}
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	removed, err := h.lib.Delete(r.Context(), filename)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"filename": filename, "removedFrom": removed})
}

type retagRequest struct {
	Tags []string `json:"tags"`
}

// RetagImage handles PUT /images/{filename}/tags
func (h *Handler) RetagImage(w http.ResponseWriter, r *http.Request) {
	var req retagRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		RespondBadRequest(w, "Invalid request body")
		return
	}

	res, err := h.lib.Retag(r.Context(), mux.Vars(r)["filename"], req.Tags)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	partial := res.Sync.Err()
	if partial == nil && res.Organize != nil {
		partial = res.Organize.Err()
	}
	RespondPartial(w, http.StatusOK, res, partial)
}

// OrganizeImage handles POST /images/{filename}/organize
func (h *Handler) OrganizeImage(w http.ResponseWriter, r *http.Request) {
	res, err := h.lib.Organize(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondPartial(w, http.StatusOK, res, res.Err())
}

// Reprocess handles POST /reprocess
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, queue.TaskReprocess, h.lib.Reprocess)
}

// Reorganize handles POST /reorganize
func (h *Handler) Reorganize(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, queue.TaskReorganize, h.lib.Reorganize)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, taskType string, run func(context.Context) (library.BulkResult, error)) {
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async && h.tasks != nil {
		id, err := h.tasks.Enqueue(r.Context(), taskType, nil)
		if err != nil {
			respondErr(w, h.logger, err)
			return
		}
		RespondJSON(w, http.StatusAccepted, queue.TaskInfo{TaskID: id, Status: queue.StatusQueued})
		return
	}

	res, err := run(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// ListCategories handles GET /categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	docs, err := h.lib.Categories(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, docs)
}

// GetCategory handles GET /categories/{key}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lib.Category(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, doc)
}

// ListPersons handles GET /persons
func (h *Handler) ListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.lib.Persons(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, persons)
}

// GetTask handles GET /tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		RespondNotFound(w, "task queue is not configured")
		return
	}
	info, err := h.tasks.Task(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, info)
}
