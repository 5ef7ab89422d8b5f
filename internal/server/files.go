package server

import (
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/meridian-video/camera-gateway/internal/catalog"
)

// handleServeFile returns a handler for GET /files/{recordings,snapshots}/{filename}
// (spec §6): validates the filename against path traversal, serves the file
// with a Content-Disposition attachment header, and maps catalog errors to
// the HTTP statuses the spec names (400 on a malformed/traversal filename,
// 404 on an unknown file).
func (s *Server) handleServeFile(category catalog.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		filename := path.Base(r.URL.Path)

		filePath, err := s.catalogSvc.ResolveFilePath(category, filename)
		if err != nil {
			var invalid *catalog.ErrInvalidParam
			if errors.As(err, &invalid) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		http.ServeFile(w, r, filePath)
	}
}
