package domain

import "fmt"

// ParseError reports a gauge document that could not be turned into a
// Reading: malformed XML, a missing required field, or a bad time string.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse gauge document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse gauge document: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NumberFormatError reports a Pegel value that does not match the German
// decimal-comma pattern "<integer>,<2 digits>".
type NumberFormatError struct {
	Input string
}

func (e *NumberFormatError) Error() string {
	return fmt.Sprintf("invalid water level %q: want decimal-comma form like \"3,68\"", e.Input)
}

// DateFormatError reports a Datum value that does not match
// "<day>. <German month name> <4-digit year>".
type DateFormatError struct {
	Input string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid date %q: want form like \"27. Oktober 2025\"", e.Input)
}

// FetchExhaustedError reports that every fetch attempt failed. Last carries
// the final attempt's underlying error.
type FetchExhaustedError struct {
	Attempts int
	Last     error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Last }

// StorageError reports a persistence-layer failure. The history store logs
// these and degrades; they never reach its callers.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
