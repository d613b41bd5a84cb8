package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ekoi/dataverse-archiver/internal/api/response"
	"github.com/ekoi/dataverse-archiver/internal/archive"
	"github.com/ekoi/dataverse-archiver/internal/store"
	"github.com/ekoi/dataverse-archiver/pkg/models"
)

// ArchiveService is the part of the archive service the handlers need.
type ArchiveService interface {
	Submit(ctx context.Context, job models.ArchiveJob) (archive.Outcome, error)
	Status(ctx context.Context, globalID, version string) (*archive.StatusView, error)
	Cancel(globalID, version string) bool
}

type submitRequest struct {
	PersistentID   string `json:"persistent_id"`
	VersionNumber  string `json:"version_number"`
	TargetName     string `json:"target_name"`
	SubmitterToken string `json:"submitter_api_token"`
	SubmitterEmail string `json:"submitter_email"`
	TargetUsername string `json:"target_username"`
	TargetPassword string `json:"target_password"`
	Affiliation    string `json:"target_affiliation,omitempty"`
}

type outcomeResponse struct {
	State      string `json:"state"`
	MessageKey string `json:"message_key"`
}

// NewSubmitHandler returns a handler for POST /api/v1/archives.
func NewSubmitHandler(svc ArchiveService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.PersistentID == "" || req.VersionNumber == "" || req.TargetName == "" {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "persistent_id, version_number and target_name are required", nil)
			return
		}
		if req.TargetUsername == "" || req.TargetPassword == "" {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "target_username and target_password are required", nil)
			return
		}

		job := models.ArchiveJob{
			PersistentID:      req.PersistentID,
			VersionNumber:     req.VersionNumber,
			TargetName:        req.TargetName,
			SubmitterAPIToken: req.SubmitterToken,
			SubmitterEmail:    req.SubmitterEmail,
			Credentials: models.TargetCredentials{
				Username:    req.TargetUsername,
				Password:    req.TargetPassword,
				Affiliation: req.Affiliation,
			},
		}

		outcome, err := svc.Submit(r.Context(), job)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound,
					"NOT_FOUND", "Dataset version not found", nil)
				return
			}
			slog.Error("archive submission failed",
				"persistent_id", req.PersistentID,
				"version", req.VersionNumber,
				"error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to submit archive request", nil)
			return
		}

		body := outcomeResponse{
			State:      string(outcome.State),
			MessageKey: outcome.MessageKey,
		}

		switch outcome.State {
		case archive.StateInProgress:
			response.Accepted(w, body)
		case archive.StateInvalidCredentials:
			response.Error(w, http.StatusForbidden,
				"INVALID_TARGET_CREDENTIALS", "Archival target rejected the supplied credentials",
				body)
		case archive.StateBridgeDown, archive.StateTargetDown:
			response.Error(w, http.StatusBadGateway,
				"UPSTREAM_UNAVAILABLE", "Archival service is unreachable", body)
		case archive.StateRequestTimeout:
			response.Error(w, http.StatusGatewayTimeout,
				"UPSTREAM_TIMEOUT", "Archival service did not respond in time", body)
		default:
			response.Error(w, http.StatusInternalServerError,
				"ARCHIVE_ERROR", "Archive submission was not accepted", body)
		}
	}
}

type statusResponse struct {
	PersistentID  string  `json:"persistent_id"`
	VersionNumber string  `json:"version_number"`
	State         string  `json:"state"`
	Note          *string `json:"note,omitempty"`
	ArchiveTime   *string `json:"archive_time,omitempty"`
}

// NewStateHandler returns a handler for GET /api/v1/archives/state.
func NewStateHandler(svc ArchiveService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		globalID := r.URL.Query().Get("persistent_id")
		version := r.URL.Query().Get("version_number")
		if globalID == "" || version == "" {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "persistent_id and version_number query parameters are required", nil)
			return
		}

		view, err := svc.Status(r.Context(), globalID, version)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound,
					"NOT_FOUND", "Dataset version not found", nil)
				return
			}
			slog.Error("archive status lookup failed",
				"persistent_id", globalID, "version", version, "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to fetch archive status", nil)
			return
		}

		body := statusResponse{
			PersistentID:  globalID,
			VersionNumber: version,
			State:         view.State,
			Note:          view.Note,
		}
		if view.ArchiveTime != nil {
			s := view.ArchiveTime.UTC().Format("2006-01-02T15:04:05Z07:00")
			body.ArchiveTime = &s
		}
		response.JSON(w, body)
	}
}

// NewCancelHandler returns a handler for DELETE /api/v1/archives. It stops
// the poll loop for a submission; the remote archival job itself is not
// affected.
func NewCancelHandler(svc ArchiveService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		globalID := r.URL.Query().Get("persistent_id")
		version := r.URL.Query().Get("version_number")
		if globalID == "" || version == "" {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "persistent_id and version_number query parameters are required", nil)
			return
		}

		if !svc.Cancel(globalID, version) {
			response.Error(w, http.StatusNotFound,
				"NOT_FOUND", "No active poll loop for this dataset version", nil)
			return
		}

		response.JSON(w, map[string]string{
			"persistent_id":  globalID,
			"version_number": version,
			"status":         "cancelled",
		})
	}
}
