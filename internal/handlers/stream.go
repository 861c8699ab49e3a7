package handlers

import (
	"net/http"
)

// handleStream attaches the client as a broadcast listener and pumps MP3
// chunks until the client disconnects or the sink is closed. The sink
// arrives primed with one silence frame so decoders lock on immediately.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	listener, err := s.engine.AttachListener()
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("Listener attached", map[string]interface{}{
		"listener_id": listener.ID(),
		"remote_addr": r.RemoteAddr,
	})
	defer func() {
		s.engine.DetachListener(listener.ID())
		s.logger.Info("Listener detached", map[string]interface{}{
			"listener_id": listener.ID(),
		})
	}()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case chunk, open := <-listener.Chunks():
			if !open {
				// Evicted for falling behind, or engine shutdown
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
