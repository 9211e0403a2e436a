package errors

// ErrorResponse is the externally visible shape of an error. Messages are
// generic by design: gateway response internals, codes, and secrets are
// never surfaced outside the system.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// ErrorDetail carries the operator-safe parts of an error.
type ErrorDetail struct {
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorResponse converts any error into its external representation,
// keeping only the hint and reportable details of an InternalError.
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return &ErrorResponse{Success: true}
	}

	detail := &ErrorDetail{
		Message: "an unexpected error occurred",
		Code:    codeForError(err),
	}

	var ierr *InternalError
	if As(err, &ierr) {
		if ierr.Hint() != "" {
			detail.Message = ierr.Hint()
		}
		detail.Details = ierr.ReportableDetails()
	}

	return &ErrorResponse{Success: false, Error: detail}
}

func codeForError(err error) string {
	switch {
	case IsValidation(err):
		return "validation_error"
	case IsNotFound(err):
		return "not_found"
	case IsAlreadyExists(err):
		return "already_exists"
	case IsVersionConflict(err):
		return "version_conflict"
	case IsGatewayDeclined(err):
		return "payment_declined"
	case IsGatewayTimeout(err):
		return "gateway_timeout"
	case IsConfiguration(err):
		return "configuration_error"
	case IsDatabase(err):
		return "database_error"
	default:
		return "internal_error"
	}
}
