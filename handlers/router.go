package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter registers every route and serves the uploads and organized
// folders as static files.
func NewRouter(h *Handler, uploadsDir, organizedDir string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/upload", h.Upload).Methods("POST")
	r.HandleFunc("/images", h.ListImages).Methods("GET")
	r.HandleFunc("/images/{filename}", h.GetImage).Methods("GET")
	r.HandleFunc("/images/{filename}", h.DeleteImage).Methods("DELETE")
	r.HandleFunc("/images/{filename}/tags", h.RetagImage).Methods("PUT")
	r.HandleFunc("/images/{filename}/organize", h.OrganizeImage).Methods("POST")
	r.HandleFunc("/reprocess", h.Reprocess).Methods("POST")
	r.HandleFunc("/reorganize", h.Reorganize).Methods("POST")
	r.HandleFunc("/categories", h.ListCategories).Methods("GET")
	r.HandleFunc("/categories/{key:.+}", h.GetCategory).Methods("GET")
	r.HandleFunc("/persons", h.ListPersons).Methods("GET")
	r.HandleFunc("/tasks/{id}", h.GetTask).Methods("GET")

	uploads := http.FileServer(http.Dir(uploadsDir))
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", uploads))
	organized := http.FileServer(http.Dir(organizedDir))
	r.PathPrefix("/organized/").Handler(http.StripPrefix("/organized/", organized))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}
