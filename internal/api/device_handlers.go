package api

import (
	"errors"
	"net/http"

	"github.com/flowpbx/sccpd/internal/sccp"
	"github.com/go-chi/chi/v5"
)

// handleListSessions returns the connected sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	pg, msg := parsePagination(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	sessions := s.opts.Dispatcher.Store().Sessions()
	snaps := make([]sccp.SessionSnapshot, len(sessions))
	for i, sess := range sessions {
		snaps[i] = sess.Snapshot()
	}
	writeJSON(w, http.StatusOK, paginate(snaps, pg))
}

// handleListDevices returns known devices, provisioned or anonymous.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	pg, msg := parsePagination(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	devices := s.opts.Dispatcher.Store().Devices()
	snaps := make([]sccp.DeviceSnapshot, len(devices))
	for i, d := range devices {
		snaps[i] = d.Snapshot()
	}
	writeJSON(w, http.StatusOK, paginate(snaps, pg))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d := s.opts.Dispatcher.Store().Device(chi.URLParam(r, "id"))
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

type deviceMessageRequest struct {
	Message string `json:"message"`
}

// handleSetDeviceMessage stores the prompt message of a device and shows it
// if the phone is online. An empty message clears it.
func (s *Server) handleSetDeviceMessage(w http.ResponseWriter, r *http.Request) {
	var req deviceMessageRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := firstError(
		validateStringLen("message", req.Message, maxPromptLen),
		validateNoControlChars("message", req.Message),
	); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	id := chi.URLParam(r, "id")
	err := s.opts.Dispatcher.SetDeviceMessage(r.Context(), id, req.Message)
	if errors.Is(err, sccp.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("set device message: failed", "device_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"device_id": id, "message": req.Message})
}
