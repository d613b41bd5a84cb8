package models

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is a locally mirrored dataset identified by its persistent
// (global) identifier, e.g. "doi:10.5/ABC".
type Dataset struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	GlobalID  string    `db:"global_id"  json:"global_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DatasetVersion is one published version of a dataset, addressed by its
// human-facing "major.minor" friendly number. The archive_* columns form
// the archive record: last known archival state, the success note, and the
// time of the last state write. They start null and are first populated
// when a submission happens for the version.
type DatasetVersion struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	DatasetID      uuid.UUID  `db:"dataset_id"      json:"dataset_id"`
	FriendlyNumber string     `db:"friendly_number" json:"friendly_number"`
	ArchiveState   *string    `db:"archive_state"   json:"archive_state,omitempty"`
	ArchiveNote    *string    `db:"archive_note"    json:"archive_note,omitempty"`
	ArchiveTime    *time.Time `db:"archive_time"    json:"archive_time,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}
