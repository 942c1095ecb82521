package models

import "time"

// Stats holds store-wide totals for the stats endpoint.
type Stats struct {
	TotalUsers    int64
	TotalMessages int64
	UnreadTotal   int64
	LastActivity  *time.Time
}
