package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ekoi/dataverse-archiver/internal/api/response"
	"github.com/ekoi/dataverse-archiver/internal/store"
)

type registerDatasetRequest struct {
	PersistentID  string `json:"persistent_id"`
	VersionNumber string `json:"version_number"`
}

// NewRegisterDatasetHandler returns a handler for POST /api/v1/admin/datasets.
// It registers a dataset version so archive submissions for it are accepted.
func NewRegisterDatasetHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerDatasetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.PersistentID == "" || req.VersionNumber == "" {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "persistent_id and version_number are required", nil)
			return
		}

		dv, err := s.UpsertDatasetVersion(r.Context(), req.PersistentID, req.VersionNumber)
		if err != nil {
			slog.Error("dataset registration failed",
				"persistent_id", req.PersistentID,
				"version", req.VersionNumber,
				"error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to register dataset version", nil)
			return
		}

		response.Created(w, dv)
	}
}
