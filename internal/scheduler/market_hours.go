package scheduler

import "time"

// MarketHours is a weekday trading session in a fixed time zone.
type MarketHours struct {
	Location *time.Location
	// Open and Close are offsets from local midnight.
	Open  time.Duration
	Close time.Duration
}

// TaiwanMarketHours is the TWSE/TAIFEX day session, 09:00 to 13:30 in Taipei.
func TaiwanMarketHours(loc *time.Location) MarketHours {
	if loc == nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return MarketHours{
		Location: loc,
		Open:     9 * time.Hour,
		Close:    13*time.Hour + 30*time.Minute,
	}
}

// IsOpen reports whether t falls inside the session. Holidays are not known.
func (m MarketHours) IsOpen(t time.Time) bool {
	local := t.In(m.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.Location)
	offset := local.Sub(midnight)
	return offset >= m.Open && offset <= m.Close
}
