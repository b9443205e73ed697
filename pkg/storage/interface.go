package storage

import (
	"context"
	"time"
)

// TaskState is the terminal disposition of one logical crawl task.
type TaskState string

const (
	TaskStateUnset     TaskState = ""          // Zero value = unknown
	TaskStateDelivered TaskState = "delivered" // Response reached spider callbacks
	TaskStateIgnored   TaskState = "ignored"   // Filtered at the spider boundary (non-success status)
	TaskStateAbandoned TaskState = "abandoned" // Budget exhaustion or policy drop
	TaskStateFailed    TaskState = "failed"    // Transport failure that outlived the retry budget
)

// String implements fmt.Stringer for logging
func (s TaskState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// TaskResult records how one task chain ended, keyed by the original URL.
type TaskResult struct {
	State         TaskState `json:"state"`
	HTTPStatus    int       `json:"http_status,omitempty"`
	ErrorType     string    `json:"error_type,omitempty"`
	RedirectTimes int       `json:"redirect_times,omitempty"`
	RetryTimes    int       `json:"retry_times,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ResultStore persists terminal task outcomes so a resumed crawl can skip
// work that already completed.
type ResultStore interface {
	// Record stores the terminal result for a URL, replacing any earlier one.
	Record(url string, result *TaskResult) error

	// Get retrieves a stored result. The bool is false when the URL has no
	// recorded outcome.
	Get(url string) (*TaskResult, bool, error)

	// Count returns the number of recorded results.
	Count() (int, error)

	// RunGC runs periodic value-log garbage collection. Run in a goroutine.
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the store.
	Close() error
}
