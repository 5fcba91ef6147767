package config

import (
	"os"
	"strconv"
	"strings"
)

// AutoPostEnabled controls whether matched remittance records are posted to
// the claim ledger without human review.
//
// Set via env:
// - POSTING_AUTO_POST=false to force every match through manual confirmation
func AutoPostEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("POSTING_AUTO_POST")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AutoPostMinConfidence is the minimum match confidence (0-100) eligible for
// auto-posting. Matches below the threshold land in the variance report for
// manual confirmation. Default 60: exact and fuzzy matches post, 50-confidence
// partial matches do not.
//
// Set via env:
// - POSTING_MIN_CONFIDENCE=0 to reproduce post-everything behavior
func AutoPostMinConfidence() int {
	v := strings.TrimSpace(os.Getenv("POSTING_MIN_CONFIDENCE"))
	if v == "" {
		return 60
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 100 {
		return 60
	}
	return n
}

// ClearinghouseEnabled gates the optional outbound submission of raw
// remittance payloads. Failures there never block local processing either way.
func ClearinghouseEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CLEARINGHOUSE_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
