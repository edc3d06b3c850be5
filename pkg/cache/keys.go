package cache

// Response cache keys for the booking read endpoints. Every mutation of a
// session or requester invalidates the matching patterns.

func SessionBookingsKey(sessionID, query string) string {
	return "bookings:session:" + sessionID + ":" + query
}

func RequesterBookingsKey(requesterID, query string) string {
	return "bookings:requester:" + requesterID + ":" + query
}

func CapacityKey(sessionID string) string {
	return "capacity:" + sessionID
}

// BookingPatterns lists the patterns to drop after a booking for sessionID
// held by requesterID changed.
func BookingPatterns(sessionID, requesterID string) []string {
	return []string{
		SessionBookingsKey(sessionID, "*"),
		RequesterBookingsKey(requesterID, "*"),
		CapacityKey(sessionID),
	}
}
