package main

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks at the command layer.
var (
	// ErrResolution indicates package metadata without a dependency resolution.
	ErrResolution = errors.New("resolution error")

	// ErrReportMissing indicates the timing report was not written by the build.
	ErrReportMissing = errors.New("timing report missing")

	// ErrReportParse indicates the timing report could not be located or decoded.
	ErrReportParse = errors.New("timing report parse error")
)

// ResolutionError is returned when package metadata carries no resolved
// dependency graph. An empty graph is not an error.
type ResolutionError struct {
	Msg string
}

func (e *ResolutionError) Error() string {
	if e.Msg == "" {
		return ErrResolution.Error()
	}
	return fmt.Sprintf("%s: %s", ErrResolution.Error(), e.Msg)
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }

// ReportMissingError is returned when the timing report file does not exist.
type ReportMissingError struct {
	Path string
}

func (e *ReportMissingError) Error() string {
	return fmt.Sprintf("%s: not found at %s", ErrReportMissing.Error(), e.Path)
}

func (e *ReportMissingError) Unwrap() error { return ErrReportMissing }

// ParseErrorKind tells apart the two ways a timing report can fail to parse.
type ParseErrorKind int

const (
	// MarkerNotFound: the embedded unit data block is absent.
	MarkerNotFound ParseErrorKind = iota + 1
	// MalformedPayload: the block was found but its contents do not decode.
	MalformedPayload
)

func (k ParseErrorKind) String() string {
	switch k {
	case MarkerNotFound:
		return "marker not found"
	case MalformedPayload:
		return "malformed payload"
	default:
		return "unknown"
	}
}

// ReportParseError describes a timing report that could not be parsed.
type ReportParseError struct {
	Kind   ParseErrorKind
	Record int // index of the offending record, -1 when not record specific
	Msg    string
	Err    error
}

func (e *ReportParseError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrReportParse.Error(), e.Kind)
	if e.Record >= 0 {
		msg += fmt.Sprintf(": record %d", e.Record)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReportParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrReportParse}
	}
	return []error{ErrReportParse, e.Err}
}
