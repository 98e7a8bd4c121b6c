package s3url

import (
	"errors"
	"fmt"
)

// Parse errors
var (
	// ErrUnrecognizedFormat indicates the host is neither a virtual-hosted nor a path-style S3 endpoint
	ErrUnrecognizedFormat = errors.New("unrecognized S3 URL format")

	// ErrIncompleteReference indicates the URL did not yield both a bucket and a key
	ErrIncompleteReference = errors.New("could not extract bucket and key")
)

// UnrecognizedFormatError carries the URL that could not be matched to an S3 endpoint
type UnrecognizedFormatError struct {
	URL string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnrecognizedFormat, e.URL)
}

func (e *UnrecognizedFormatError) Unwrap() error {
	return ErrUnrecognizedFormat
}

// IncompleteReferenceError carries the URL whose bucket or key was empty
type IncompleteReferenceError struct {
	URL string
}

func (e *IncompleteReferenceError) Error() string {
	return fmt.Sprintf("%v from URL: %s", ErrIncompleteReference, e.URL)
}

func (e *IncompleteReferenceError) Unwrap() error {
	return ErrIncompleteReference
}
