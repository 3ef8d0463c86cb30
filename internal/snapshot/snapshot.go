// Package snapshot archives raw fetched page bodies for later auditing.
package snapshot

import (
	"crypto/sha256"
	"fmt"
	"path"
	"time"
)

// ObjectPath builds the archive path for a fetched page body, keyed by
// fetch day and content hash so identical bodies dedupe naturally.
func ObjectPath(prefix, source string, fetchedAt time.Time, body []byte) string {
	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	return path.Join(
		prefix,
		source,
		fetchedAt.UTC().Format("2006-01-02"),
		fmt.Sprintf("%s.html", hash),
	)
}
