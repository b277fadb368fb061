package domain

import (
	"context"
	"errors"
	"fmt"
)

// Stage names where in an adapter run an error happened.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageTimeout Stage = "timeout"
)

// ErrorRecord is the serialized form of an adapter failure.
type ErrorRecord struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage"`
}

// FetchError covers network failures, bad statuses and request timeouts.
type FetchError struct {
	URL    string
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	return joinDetail(e.Detail, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports malformed or unexpected upstream structure.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	return joinDetail(e.Detail, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError marks a source that was still running when the run
// deadline expired.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return "run deadline exceeded"
	}
	return "run deadline exceeded: " + e.Err.Error()
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ValidationError describes a scenario input that was replaced by a default.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s=%q: %s", e.Field, e.Value, e.Reason)
}

// RecordFromError classifies err into an ErrorRecord for the given source.
func RecordFromError(source string, err error) ErrorRecord {
	rec := ErrorRecord{Source: source, Message: err.Error(), Stage: StageFetch}

	var (
		timeoutErr *TimeoutError
		parseErr   *ParseError
	)
	switch {
	case errors.As(err, &timeoutErr):
		rec.Stage = StageTimeout
	case errors.As(err, &parseErr):
		rec.Stage = StageParse
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			rec.Stage = StageTimeout
		}
	}
	return rec
}

func joinDetail(detail string, err error) string {
	switch {
	case detail != "" && err != nil:
		return detail + ": " + err.Error()
	case err != nil:
		return err.Error()
	default:
		return detail
	}
}
