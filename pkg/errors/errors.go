package errors

import "fmt"

// Error codes
const (
	CodeAppError           = "APP_ERROR"
	CodeAPIError           = "API_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeCapture            = "CAPTURE_ERROR"
	CodeGeneration         = "GENERATION_ERROR"
	CodeExportPrecondition = "EXPORT_PRECONDITION"
	CodeTransition         = "TRANSITION_ERROR"
	CodeNotFound           = "NOT_FOUND"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus and ErrorCode are promoted to every typed wrapper, so callers can
// match any of them with a single errors.As against Coded.
func (e *AppError) HTTPStatus() int {
	return e.StatusCode
}

func (e *AppError) ErrorCode() string {
	return e.Code
}

// UserMessage is the message without the wrapped cause.
func (e *AppError) UserMessage() string {
	return e.Message
}

// Coded is satisfied by AppError and all of its wrappers.
type Coded interface {
	error
	HTTPStatus() int
	ErrorCode() string
	UserMessage() string
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// APIError reports a failed call to an upstream AI provider.
type APIError struct {
	*AppError
	Provider string
}

func NewAPIError(message, provider string, statusCode int, cause error) *APIError {
	return &APIError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context: map[string]any{
				"provider": provider,
			},
			Cause: cause,
		},
		Provider: provider,
	}
}

type ValidationError struct {
	*AppError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

// CaptureError is raised when the camera cannot be opened or read. Callers fall
// back to the file upload path.
type CaptureError struct {
	*AppError
	Device string
}

func NewCaptureError(message, device string, cause error) *CaptureError {
	return &CaptureError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCapture,
			StatusCode: 502,
			Context: map[string]any{
				"device": device,
			},
			Cause: cause,
		},
		Device: device,
	}
}

// GenerationError is fatal to a transform: either the generation call failed or
// its response carried no usable image reference.
type GenerationError struct {
	*AppError
	Stage string
}

func NewGenerationError(message, stage string, cause error) *GenerationError {
	return &GenerationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeGeneration,
			StatusCode: 502,
			Context: map[string]any{
				"stage": stage,
			},
			Cause: cause,
		},
		Stage: stage,
	}
}

type ExportPreconditionError struct {
	*AppError
	Missing []string
}

func NewExportPreconditionError(missing []string) *ExportPreconditionError {
	return &ExportPreconditionError{
		AppError: &AppError{
			Message:    fmt.Sprintf("nothing to export yet (missing: %v)", missing),
			Code:       CodeExportPrecondition,
			StatusCode: 409,
			Context: map[string]any{
				"missing": missing,
			},
		},
		Missing: missing,
	}
}

type TransitionError struct {
	*AppError
	From string
	To   string
}

func NewTransitionError(from, to string) *TransitionError {
	return &TransitionError{
		AppError: &AppError{
			Message:    fmt.Sprintf("cannot move from %s to %s", from, to),
			Code:       CodeTransition,
			StatusCode: 409,
			Context: map[string]any{
				"from": from,
				"to":   to,
			},
		},
		From: from,
		To:   to,
	}
}

func NewNotFoundError(resource, id string) *AppError {
	return &AppError{
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       CodeNotFound,
		StatusCode: 404,
		Context: map[string]any{
			"id": id,
		},
	}
}
