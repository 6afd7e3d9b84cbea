package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flowpbx/sccpd/internal/database"
	"github.com/flowpbx/sccpd/internal/sccp"
	"gopkg.in/yaml.v3"
)

const yamlContentType = "application/yaml"

// isYAML reports whether a media type names a YAML document.
func isYAML(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return false
	}
	return mt == yamlContentType || mt == "application/x-yaml" || mt == "text/yaml"
}

func wantsYAML(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isYAML(strings.TrimSpace(part)) {
			return true
		}
	}
	return false
}

// readYAML decodes a single YAML provisioning document, rejecting unknown
// keys.
func readYAML(r *http.Request, dst *sccp.Provisioning) string {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	if err != nil {
		return "request body too large"
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "request body must not be empty"
	}
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return "malformed yaml: " + err.Error()
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return "request body must contain a single yaml document"
	}
	return ""
}

// handleGetConfig returns the stored provisioning, as YAML when the client
// asks for it.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	p, err := s.opts.Provisioning.Load(r.Context())
	if err != nil {
		s.logger.Error("get config: failed to load provisioning", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if wantsYAML(r) {
		out, err := yaml.Marshal(p)
		if err != nil {
			s.logger.Error("get config: failed to encode yaml", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.Header().Set("Content-Type", yamlContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(out) //nolint:errcheck
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type configResponse struct {
	Revision int              `json:"revision"`
	Applied  sccp.ApplyResult `json:"applied"`
}

// handlePutConfig replaces the provisioning document, persists it and
// applies it to the running registries.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var p sccp.Provisioning
	var msg string
	if isYAML(r.Header.Get("Content-Type")) {
		msg = readYAML(r, &p)
	} else {
		msg = readJSON(r, &p)
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.opts.Provisioning.Save(r.Context(), p); err != nil {
		s.logger.Error("put config: failed to save provisioning", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	res, err := s.opts.Dispatcher.ApplyConfig(p)
	if err != nil {
		s.logger.Error("put config: failed to apply provisioning", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rev, err := s.bumpRevision(r)
	if err != nil {
		s.logger.Warn("put config: failed to record revision", "error", err)
	}

	s.logger.Info("provisioning replaced via api", "revision", rev, "lines", len(p.Lines), "devices", len(p.Devices))
	writeJSON(w, http.StatusOK, configResponse{Revision: rev, Applied: res})
}

// bumpRevision increments the stored provisioning revision counter.
func (s *Server) bumpRevision(r *http.Request) (int, error) {
	if s.opts.SystemConfig == nil {
		return 0, nil
	}
	ctx := r.Context()
	cur, err := s.opts.SystemConfig.Get(ctx, database.ConfigProvisioningRevision)
	if err != nil {
		return 0, err
	}
	rev, _ := strconv.Atoi(cur)
	rev++
	if err := s.opts.SystemConfig.Set(ctx, database.ConfigProvisioningRevision, strconv.Itoa(rev)); err != nil {
		return 0, err
	}
	if err := s.opts.SystemConfig.Set(ctx, database.ConfigProvisioningUpdated, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return rev, err
	}
	return rev, nil
}
