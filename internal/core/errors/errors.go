package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpInvalidQueryError    = "invalid_query"
	HttpNotFoundError        = "not_found"
	HttpDuplicateRecordError = "duplicate_record"
	HttpPipelineStoppedError = "pipeline_not_running"
	HttpPipelineRunningError = "pipeline_already_running"
)

// ErrorResponse is the error response body shared by every HTTP handler.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
