package service

// Phase is where a booking attempt stands in the two-lock protocol.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseUserLocked
	PhaseSessionLocked
	PhaseCapacityChecked
	PhaseWritten
	PhaseReleased
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseStart:           "START",
	PhaseUserLocked:      "USER_LOCKED",
	PhaseSessionLocked:   "SESSION_LOCKED",
	PhaseCapacityChecked: "CAPACITY_CHECKED",
	PhaseWritten:         "WRITTEN",
	PhaseReleased:        "RELEASED",
	PhaseFailed:          "FAILED",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

// UserResource is the lock resource serialising one requester's attempts on a date.
func UserResource(requesterID, date string) string {
	return "user:" + requesterID + ":" + date
}

// SessionResource is the lock resource guarding a session's capacity.
func SessionResource(sessionID string) string {
	return "session:" + sessionID
}
