package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	TTLSecurityMetadata = 7 * 24 * time.Hour // Company name and sector rarely change
	TTLPriceHistory     = 6 * time.Hour      // Daily bars only move once per session
	TTLQuote            = 5 * time.Minute
)
