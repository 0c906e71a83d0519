package storage_test

import (
	"strings"

	"github.com/google/uuid"
)

// uniqueBucketName returns a valid bucket name starting with prefix, so tests
// running side by side never share a bucket.
func uniqueBucketName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	prefix = strings.Trim(strings.ToLower(prefix), "-_.")
	if maxPrefix := 63 - len(suffix) - 1; len(prefix) > maxPrefix {
		prefix = strings.TrimRight(prefix[:maxPrefix], "-_.")
	}
	return prefix + "-" + suffix
}
