package api

import (
	"math"
	"time"
)

// Result status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SignResponse is returned when a presigned URL was generated
type SignResponse struct {
	OriginalURL      string  `json:"original_url"`
	PresignedURL     string  `json:"presigned_url"`
	ExpiresIn        int     `json:"expires_in"`
	Status           string  `json:"status"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// ErrorResponse is returned when signing failed after the input was accepted
type ErrorResponse struct {
	Error            string  `json:"error"`
	Status           string  `json:"status"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// UsageResponse is returned when the GET request has no url parameter
type UsageResponse struct {
	Error string `json:"error"`
	Usage string `json:"usage"`
}

// MissingURLResponse is returned when the POST body has no url field
type MissingURLResponse struct {
	Error        string `json:"error"`
	Usage        string `json:"usage"`
	ReceivedData any    `json:"received_data"`
}

// InvalidJSONResponse is returned when the POST body is not valid JSON
type InvalidJSONResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	RawData string `json:"raw_data"`
}

// elapsedMillis returns the time since start in milliseconds, rounded to two decimals
func elapsedMillis(start time.Time) float64 {
	return math.Round(float64(time.Since(start).Microseconds())/10) / 100
}
