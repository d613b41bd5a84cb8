package models

// TargetCredentials is the DAR-side credential triple supplied by the
// submitting user. It is forwarded to the bridge and never persisted.
type TargetCredentials struct {
	Username    string `json:"-"`
	Password    string `json:"-"`
	Affiliation string `json:"-"`
}

// ArchiveJob is the transient unit of archival work. It is built at
// submission time from caller input plus configuration, consumed once by
// the submission flow and, if polling is required, closed over by the
// progress poller. It is never stored.
type ArchiveJob struct {
	PersistentID      string
	VersionNumber     string
	TargetName        string
	SourceMetadataURL string
	SubmitterAPIToken string
	SubmitterEmail    string
	Credentials       TargetCredentials
}

// Key identifies the job for poller registration: at most one active
// poller may exist per (persistent id, version) pair.
func (j ArchiveJob) Key() string {
	return j.PersistentID + "|" + j.VersionNumber
}
