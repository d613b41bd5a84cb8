package cache

import "fmt"

// ArchiveStateKey mirrors the last recorded archive state of a dataset
// version so status reads don't hit Postgres on every poll from the UI.
func ArchiveStateKey(globalID, version string) string {
	return fmt.Sprintf("archive:state:%s:%s", globalID, version)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
