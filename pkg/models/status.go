package models

// QueueStatus represents the lifecycle state of a queue entry.
//
// Transitions: queued -> in_progress via the atomic claim,
// in_progress -> done|failed on fetch outcome, done -> queued on recrawl
// expiry, and in_progress -> queued on startup recovery. There is no
// automatic transition out of failed; failed entries stay in the store for
// operator-driven reprocessing.
type QueueStatus string

const (
	StatusQueued     QueueStatus = "queued"      // Eligible for claim
	StatusInProgress QueueStatus = "in_progress" // Claimed by exactly one worker
	StatusDone       QueueStatus = "done"        // Last fetch succeeded (200 or 304)
	StatusFailed     QueueStatus = "failed"      // Last attempt errored or returned a bad status
)

// String implements fmt.Stringer for logging
func (s QueueStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s QueueStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusDone, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a per-attempt terminal state.
func (s QueueStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}
