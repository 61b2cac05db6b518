// Package idgen produces the identifier formats the spec fixes verbatim
// (§6 "Persisted identifier formats").
package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BlobKey returns "temp/{user_id}/{uuid4}.{ext}".
func BlobKey(userID int64, ext string) string {
	return fmt.Sprintf("temp/%d/%s.%s", userID, uuid.NewString(), ext)
}

// AnalysisID returns "ANL-YYYYMMDD-" + first 8 hex chars of sha256(imageBytes).
func AnalysisID(now time.Time, imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	return fmt.Sprintf("ANL-%s-%s", now.UTC().Format("20060102"), hex.EncodeToString(sum[:])[:8])
}

// ImageSHA256 returns the full lowercase hex digest used as the canonical
// forensic identifier (spec §3 "image_sha256").
func ImageSHA256(imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	return hex.EncodeToString(sum[:])
}

// JobID returns a fresh job identifier.
func JobID() string {
	return uuid.NewString()
}
