// Package ingest implements dedup resolution of scraped postings.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint returns the stable dedup key for a posting: a SHA-256 over
// company id, normalised title and URL in fixed order with a fixed separator,
// truncated to 16 hex characters.
//
// The title is lower-cased and trimmed so cosmetic re-listings of the same
// posting resolve to the same row; the URL is taken verbatim because boards
// treat it as case-sensitive.
func Fingerprint(companyID int64, title, url string) string {
	unique := fmt.Sprintf("%d:%s:%s", companyID, strings.ToLower(strings.TrimSpace(title)), url)
	sum := sha256.Sum256([]byte(unique))
	return hex.EncodeToString(sum[:])[:16]
}
