package job

import (
	"errors"
	"fmt"
)

// Status is the per-entry progress marker.
type Status int

const (
	ToDo Status = iota
	InProgress
	Done
	Error
	Skipped
)

var statusNames = [...]string{
	ToDo:       "TO_DO",
	InProgress: "IN_PROGRESS",
	Done:       "DONE",
	Error:      "ERROR",
	Skipped:    "SKIPPED",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if name == s {
			return Status(st), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether s is one of Done, Error or Skipped.
func (s Status) Terminal() bool {
	return s == Done || s == Error || s == Skipped
}

// ErrStatusRegression is returned when a transition would move an entry
// backwards.
var ErrStatusRegression = errors.New("status regression")

// Advance returns next if moving from s to next is allowed. Statuses only
// move forward: ToDo → InProgress → {Done, Error, Skipped}. Re-asserting
// InProgress is allowed so resumed entries can be re-recorded.
func (s Status) Advance(next Status) (Status, error) {
	switch {
	case s.Terminal():
		if s == next {
			return s, nil
		}
		return s, fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s, next)
	case next < s:
		return s, fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s, next)
	}
	return next, nil
}

// JobStatus is the status of a whole job.
type JobStatus int

const (
	JobInProgress JobStatus = iota
	JobAborted
	JobDone
)

var jobStatusNames = [...]string{
	JobInProgress: "IN_PROGRESS",
	JobAborted:    "ABORTED",
	JobDone:       "DONE",
}

func (s JobStatus) String() string {
	if int(s) < len(jobStatusNames) {
		return jobStatusNames[s]
	}
	return "UNKNOWN"
}

// ParseJobStatus is the inverse of JobStatus.String.
func ParseJobStatus(s string) (JobStatus, error) {
	for st, name := range jobStatusNames {
		if name == s {
			return JobStatus(st), nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", s)
}
