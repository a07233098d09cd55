package clientdata

import "time"

// TTL constants for cached quote data.
// These are added to now when storing to calculate expires_at.
const (
	// TTLCurrentPrice bounds how long a stock quote is served without asking upstream.
	TTLCurrentPrice = time.Minute
	// TTLIndexQuote bounds how long the index level is served without asking upstream.
	TTLIndexQuote = time.Minute

	// StaleRetention is how long an expired row is kept as a fallback for when
	// the quote proxy is down. Covers the longest exchange holiday.
	StaleRetention = 10 * 24 * time.Hour
)
