package results

import (
	"strings"
	"time"
)

// SQLite allows one writer at a time; a report reader or dashboard query
// holding the file briefly surfaces as a busy error on the writer side.
const (
	busyAttempts  = 5
	busyBaseDelay = 10 * time.Millisecond
)

// isSQLiteBusy reports whether an error is the driver's lock contention
// signal, which is worth retrying, as opposed to a real failure.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryOnBusy runs fn, retrying with doubling backoff while it reports
// lock contention. Any other error returns immediately.
func retryOnBusy(fn func() error) error {
	delay := busyBaseDelay
	var err error
	for attempt := 0; attempt < busyAttempts; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyAttempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
