package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hendrikreh/chessmate/internal/sanitize"
	"github.com/hendrikreh/chessmate/internal/snapshot"
)

// createSnapshotRequest is the POST /admin/snapshots body an operator (or
// the tooling that drives a Qdrant snapshot) submits after taking a
// vector-store snapshot, to be appended to the audit catalogue.
type createSnapshotRequest struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	SizeBytes int64  `json:"size_bytes"`
	Note      string `json:"note,omitempty"`
}

// handleListSnapshots returns the full append-only snapshot catalogue for
// operator auditing.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	records, err := s.snapshots.ReadAll()
	if err != nil {
		s.log.Error("reading snapshot catalogue failed", "error", sanitize.Error(err))
		writeJSONError(w, http.StatusInternalServerError, sanitize.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleCreateSnapshot appends one record to the snapshot catalogue.
func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var body createSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Name == "" || body.Location == "" {
		writeJSONError(w, http.StatusBadRequest, "name and location are required")
		return
	}

	rec := snapshot.Record{
		Name:      body.Name,
		Location:  body.Location,
		CreatedAt: time.Now(),
		SizeBytes: body.SizeBytes,
		Note:      body.Note,
	}
	if err := s.snapshots.Append(rec); err != nil {
		s.log.Error("appending snapshot record failed", "error", sanitize.Error(err))
		writeJSONError(w, http.StatusInternalServerError, sanitize.Error(err))
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
