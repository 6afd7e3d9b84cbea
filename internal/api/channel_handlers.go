package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/flowpbx/sccpd/internal/sccp"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	pg, msg := parsePagination(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	writeJSON(w, http.StatusOK, paginate(s.opts.Dispatcher.Allocator().Channels(), pg))
}

// channelFromURL resolves the {callID} parameter. It writes the error
// response itself and returns nil when there is no such channel.
func (s *Server) channelFromURL(w http.ResponseWriter, r *http.Request) *sccp.Channel {
	id, err := strconv.ParseUint(chi.URLParam(r, "callID"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call id")
		return nil
	}
	ch := s.opts.Dispatcher.Allocator().Channel(uint32(id))
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return nil
	}
	return ch
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	if ch := s.channelFromURL(w, r); ch != nil {
		writeJSON(w, http.StatusOK, ch.Snapshot())
	}
}

type channelRequest struct {
	Dial string `json:"dial"`
}

// handleRequestChannel rings a line from the API, as call control would.
func (s *Server) handleRequestChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := firstError(
		validateRequiredStringLen("dial", req.Dial, maxDialLen),
		validateNoControlChars("dial", req.Dial),
	); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ch, err := s.opts.Dispatcher.Allocator().RequestChannel(r.Context(), req.Dial)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, ch.Snapshot())
	case errors.Is(err, sccp.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "line not found")
	case errors.Is(err, sccp.ErrNoDeviceRegistered):
		writeError(w, http.StatusConflict, "no device registered on line")
	case errors.Is(err, sccp.ErrAllocationFailed):
		s.logger.Warn("request channel: allocation failed", "dial", req.Dial, "error", err)
		writeError(w, http.StatusBadGateway, "channel allocation failed")
	default:
		s.logger.Error("request channel: failed", "dial", req.Dial, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHangupChannel(w http.ResponseWriter, r *http.Request) {
	ch := s.channelFromURL(w, r)
	if ch == nil {
		return
	}
	s.opts.Dispatcher.Allocator().End(ch, sccp.CauseNormal)
	s.logger.Info("channel hung up from api", "call_id", ch.CallID(), "line", ch.LineName())
	w.WriteHeader(http.StatusNoContent)
}
