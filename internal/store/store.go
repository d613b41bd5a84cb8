package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ekoi/dataverse-archiver/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through
// here; in particular every archive-record write is one of the two
// Record* calls, each a single atomic UPDATE.
type Store interface {
	Ping(ctx context.Context) error

	UpsertDatasetVersion(ctx context.Context, globalID, friendlyNumber string) (*models.DatasetVersion, error)
	GetDatasetVersion(ctx context.Context, globalID, friendlyNumber string) (*models.DatasetVersion, error)

	// RecordArchiveState overwrites the archive state and timestamp of the
	// version addressed by (globalID, friendlyNumber). Returns ErrNotFound
	// when either fails to resolve.
	RecordArchiveState(ctx context.Context, globalID, friendlyNumber, state string) error

	// RecordArchived writes the terminal success state and archive note,
	// unless the current note already contains pid — the guard against
	// replayed poll responses producing duplicate success notifications.
	// The returned bool reports whether the row actually changed.
	RecordArchived(ctx context.Context, globalID, friendlyNumber, state, note, pid string) (bool, error)

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}
