package errors

const (
	HttpInternalError       = "internal_error"
	HttpUnknownFamilyError  = "unknown_family"
	HttpInvalidPeriodError  = "invalid_period"
	HttpInvalidRequestError = "invalid_request"
	HttpFetchFailedError    = "fetch_failed"
	HttpSnapshotPending     = "snapshot_pending"
)

// ErrorResponse is the error response body for query API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
