package storage

import (
	"regexp"
	"slices"
	"strings"
)

var (
	// gcsBucketValidationRegex checks the character set and the first and last
	// characters. The reserved "goog" prefix and "google" substring are checked
	// by IsValidBucketName; IP-address names are not rejected.
	gcsBucketValidationRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-_.]{1,61}[a-z0-9]$`)

	// storageClasses are the values GCS accepts for a bucket's default storage class.
	storageClasses = []string{
		"STANDARD",
		"NEARLINE",
		"COLDLINE",
		"ARCHIVE",
		"MULTI_REGIONAL",
		"REGIONAL",
		"DURABLE_REDUCED_AVAILABILITY",
	}
)

const (
	// maxBucketNameLength is the maximum character length for a GCS bucket name.
	// Dotted names may be longer, which we do not support.
	maxBucketNameLength = 63
)

// IsValidBucketName checks if a given string is a plausible GCS bucket name.
// It checks length, characters and reserved words but does not cover all GCS
// naming restrictions.
func IsValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > maxBucketNameLength {
		return false
	}
	if strings.Contains(name, "google") || strings.HasPrefix(name, "goog") {
		return false
	}
	return gcsBucketValidationRegex.MatchString(name)
}

// IsValidStorageClass reports whether class is a GCS storage class.
func IsValidStorageClass(class string) bool {
	return slices.Contains(storageClasses, class)
}
