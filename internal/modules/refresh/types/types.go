package types

import "time"

const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusPending = "Pending"
)

// ViewStatus is the outcome of the last refresh of one aggregate view.
type ViewStatus struct {
	LastRefreshStatus     string    `json:"lastRefreshStatus"`
	LastRefreshDurationMs int64     `json:"lastRefreshDurationMs"`
	LastRefreshTimestamp  time.Time `json:"lastRefreshTimestamp"`
	Error                 string    `json:"error,omitempty"`
}

type Health struct {
	OverallStatus string            `json:"overallStatus"`
	Views         map[string]string `json:"views"`
}

// ViewCheck is the startup state of one configured aggregate view.
type ViewCheck struct {
	Name   string
	Exists bool
	Rows   int64
	Err    error
}
