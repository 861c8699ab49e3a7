package handlers

import (
	"net/http"
)

// handleThumbnail serves the current track's artwork for one source as PNG
func (s *Server) handleThumbnail(source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := s.thumbs.Render(r.Context(), source)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(img)
	}
}
