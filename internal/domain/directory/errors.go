package directory

import "errors"

var (
	// ErrSourceUnavailable is returned when the record source cannot be
	// read or parsed. No partial data accompanies it.
	ErrSourceUnavailable = errors.New("record source unavailable")

	ErrNotFound = errors.New("patient not found")
)
