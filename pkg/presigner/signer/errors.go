package signer

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsMissing indicates no usable AWS credentials could be resolved
	ErrCredentialsMissing = errors.New("aws credentials not found")

	// ErrTimeout indicates the signing call did not finish within the configured bound
	ErrTimeout = errors.New("signing timed out")
)

// ProviderError represents an error returned by the S3 API
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("aws client error: %s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsCredentialsError returns true if the error means credentials are unavailable
func IsCredentialsError(err error) bool {
	return errors.Is(err, ErrCredentialsMissing)
}
