package model

import "time"

// RefreshJob asks a worker to fetch and record a fresh rating for Identity.
type RefreshJob struct {
	ID         string // unique per request, for log correlation
	Identity   string
	EnqueuedAt time.Time
}
