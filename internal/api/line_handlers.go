package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListLines(w http.ResponseWriter, r *http.Request) {
	pg, msg := parsePagination(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	writeJSON(w, http.StatusOK, paginate(s.opts.Dispatcher.Store().LineSnapshots(), pg))
}

func (s *Server) handleGetLine(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.opts.Dispatcher.Store().LineSnapshot(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "line not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleLineState reports the aggregated device state of a line. The name
// may carry the same suffixes as a dial string; unknown lines report
// "invalid" rather than 404.
func (s *Server) handleLineState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	state := s.opts.Dispatcher.Store().DeviceState(name)
	writeJSON(w, http.StatusOK, map[string]string{"line": name, "state": state.String()})
}
