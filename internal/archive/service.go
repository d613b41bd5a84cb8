package archive

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/ekoi/dataverse-archiver/internal/bridge"
	"github.com/ekoi/dataverse-archiver/internal/cache"
	"github.com/ekoi/dataverse-archiver/internal/config"
	"github.com/ekoi/dataverse-archiver/internal/store"
	"github.com/ekoi/dataverse-archiver/pkg/models"
)

// stateMirrorTTL bounds how long the cached copy of a version's archive
// state may outlive the authoritative row.
const stateMirrorTTL = 30 * time.Minute

// archiveNoteDateFormat renders the completion date inside the success
// note, e.g. "March 5, 2026".
const archiveNoteDateFormat = "January 2, 2006"

// Notifier is the outbound notification collaborator. Implementations
// must not escalate their own failures into the job's state; callers log
// the returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, state State, job models.ArchiveJob, detail string) error
}

// Outcome is the structured result handed back to the request layer:
// the classified state plus the message key the UI should render. No
// background task ever talks to the UI directly.
type Outcome struct {
	State      State  `json:"state"`
	MessageKey string `json:"message_key"`
}

func outcomeFor(s State) Outcome {
	return Outcome{State: s, MessageKey: s.MessageKey()}
}

// StatusView is the recorded archival status of one dataset version.
type StatusView struct {
	State       string     `json:"state"`
	Note        *string    `json:"note,omitempty"`
	ArchiveTime *time.Time `json:"archive_time,omitempty"`
}

// Service is the submission flow: it composes the ingest payload, calls
// the bridge, classifies the result, records the initial state, and hands
// in-progress jobs to the poller.
type Service struct {
	bridge   bridge.Client
	store    store.Store
	cache    cache.Cache
	notifier Notifier
	poller   *Poller
	cfg      config.ArchiveConfig
}

// NewService creates a new Service.
func NewService(b bridge.Client, st store.Store, ca cache.Cache, n Notifier, p *Poller, cfg config.ArchiveConfig) *Service {
	return &Service{
		bridge:   b,
		store:    st,
		cache:    ca,
		notifier: n,
		poller:   p,
		cfg:      cfg,
	}
}

// Submit runs the submission flow for job. The returned Outcome carries
// the classified state for every expected failure flavor; the error
// return is reserved for local faults the caller must map itself, such
// as an unknown dataset version (store.ErrNotFound).
func (s *Service) Submit(ctx context.Context, job models.ArchiveJob) (Outcome, error) {
	if _, err := s.store.GetDatasetVersion(ctx, job.PersistentID, job.VersionNumber); err != nil {
		return Outcome{}, err
	}

	job.SourceMetadataURL = s.cfg.ExportBaseURL + job.PersistentID

	req, err := s.composeIngest(job)
	if err != nil {
		// A payload we cannot compose is a local bug, not a remote fault:
		// report it to the operator with the cause and skip the transport.
		slog.Error("ingest payload composition failed", "job", job.Key(), "error", err)
		if nerr := s.notifier.Notify(ctx, StateInternalError, job, err.Error()); nerr != nil {
			slog.Warn("operator notification failed", "job", job.Key(), "error", nerr)
		}
		return outcomeFor(StateInternalError), nil
	}

	res, berr := s.bridge.Submit(ctx, req)
	state := Classify(res, berr)
	slog.Info("submission classified", "job", job.Key(), "target", job.TargetName, "state", state)

	switch state {
	case StateInProgress:
		// Persist before returning so a crash right after submission still
		// leaves a resumable record.
		if err := s.store.RecordArchiveState(ctx, job.PersistentID, job.VersionNumber, state.WithTarget(job.TargetName)); err != nil {
			return Outcome{}, fmt.Errorf("recording submission state: %w", err)
		}
		if err := s.cache.SetArchiveState(ctx, job.PersistentID, job.VersionNumber, state.WithTarget(job.TargetName), stateMirrorTTL); err != nil {
			slog.Warn("archive state mirror write failed", "job", job.Key(), "error", err)
		}
		s.poller.Start(job)

	case StateInvalidCredentials:
		// User-correctable; the message key is the whole story.

	default:
		if nerr := s.notifier.Notify(ctx, state, job, ""); nerr != nil {
			slog.Warn("operator notification failed", "job", job.Key(), "error", nerr)
		}
	}

	return outcomeFor(state), nil
}

// Status returns the recorded archival status for a dataset version,
// serving from the Redis mirror when it is warm.
func (s *Service) Status(ctx context.Context, globalID, version string) (*StatusView, error) {
	if state, ok, err := s.cache.GetArchiveState(ctx, globalID, version); err == nil && ok {
		return &StatusView{State: state}, nil
	}

	v, err := s.store.GetDatasetVersion(ctx, globalID, version)
	if err != nil {
		return nil, err
	}

	view := &StatusView{Note: v.ArchiveNote, ArchiveTime: v.ArchiveTime}
	if v.ArchiveState != nil {
		view.State = *v.ArchiveState
		if err := s.cache.SetArchiveState(ctx, globalID, version, *v.ArchiveState, stateMirrorTTL); err != nil {
			slog.Warn("archive state mirror write failed", "global_id", globalID, "error", err)
		}
	}
	return view, nil
}

// Cancel stops an in-flight poller for the version, if any.
func (s *Service) Cancel(globalID, version string) bool {
	return s.poller.Cancel(globalID, version)
}

// composeIngest builds the outbound payload, rejecting anything that
// cannot survive the wire before a single byte is sent.
func (s *Service) composeIngest(job models.ArchiveJob) (bridge.IngestRequest, error) {
	if !s.cfg.HasTarget(job.TargetName) {
		return bridge.IngestRequest{}, fmt.Errorf("unknown archive target %q", job.TargetName)
	}
	if _, err := url.Parse(job.SourceMetadataURL); err != nil {
		return bridge.IngestRequest{}, fmt.Errorf("invalid source metadata URL: %w", err)
	}
	if job.Credentials.Username == "" || job.Credentials.Password == "" {
		return bridge.IngestRequest{}, fmt.Errorf("target credentials are incomplete")
	}
	if !utf8.ValidString(job.Credentials.Username) || !utf8.ValidString(job.Credentials.Password) {
		return bridge.IngestRequest{}, fmt.Errorf("target credentials are not valid UTF-8")
	}

	return bridge.IngestRequest{
		SrcData: bridge.SrcData{
			SrcMetadataURL:     job.SourceMetadataURL,
			SrcMetadataVersion: job.VersionNumber,
			SrcName:            s.cfg.SourceName,
			SrcAPIToken:        job.SubmitterAPIToken,
		},
		DarData: bridge.DarData{
			DarName:            job.TargetName,
			DarUsername:        job.Credentials.Username,
			DarPassword:        job.Credentials.Password,
			DarUserAffiliation: job.Credentials.Affiliation,
		},
	}, nil
}
