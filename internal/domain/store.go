package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobFilter narrows a job listing. Zero fields are not applied.
type JobFilter struct {
	RequesterWallet string
	AgentID         string
	Status          Status
	PageSize        int
	Cursor          *JobCursor
}

// JobCursor is the keyset position of the last job on a page.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobPage is one page of a listing, newest first.
type JobPage struct {
	Jobs []Job
	Next *JobCursor
}

// StatusMismatchError is returned by a compare-and-set status write whose
// expected status no longer matches the stored one. Nothing was written.
type StatusMismatchError struct {
	JobID    string
	Expected Status
	Current  Status
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("job %s: expected status %s, found %s", e.JobID, e.Expected, e.Current)
}

// AsStatusMismatch extracts a StatusMismatchError from err.
func AsStatusMismatch(err error) (*StatusMismatchError, bool) {
	var mismatch *StatusMismatchError
	if errors.As(err, &mismatch) {
		return mismatch, true
	}
	return nil, false
}
