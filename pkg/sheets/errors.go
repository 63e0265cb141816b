package sheets

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks transport, auth, timeout and non-2xx failures.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrTabNotFound is returned when a tab title does not exist in the spreadsheet.
	ErrTabNotFound = errors.New("ledger tab not found")
	// ErrRangeFormat is returned when the API reports a range that cannot be parsed.
	ErrRangeFormat = errors.New("unexpected ledger range format")
)

// UnavailableError describes a failed call to the spreadsheet API.
type UnavailableError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *UnavailableError) Error() string {
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("sheets %s: status=%d: %v", e.Op, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("sheets %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("sheets %s: status=%d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("sheets %s: status=%d", e.Op, e.Status)
	}
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}
