package app

import (
	"fmt"
	"net/http"
)

// Error codes returned on the wire. Clients branch on the code, never on the
// message text, so the set is small and stable.
const (
	codeValidation        = "VALIDATION_ERROR"
	codeInvalidBody       = "INVALID_BODY"
	codeNotFound          = "NOT_FOUND"
	codeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	codeServerError       = "SERVER_ERROR"
	codeAssistantError    = "ASSISTANT_ERROR"
	codeImagesUnavailable = "IMAGES_UNAVAILABLE"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError is the common rejection of a bad request body or query.
func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, codeValidation, message, nil)
}

// assistantError wraps a failed upstream assistant call as a bad gateway.
func assistantError(err error) *DomainError {
	return domainError(http.StatusBadGateway, codeAssistantError, err.Error(), nil)
}
