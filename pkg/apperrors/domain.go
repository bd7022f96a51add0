package apperrors

import (
	"net/http"
)

// Factories for common domain errors. Repositories return sentinel errors;
// services wrap them here before they cross the HTTP boundary.

// ErrNotFound converts a repository miss (e.g. gorm.ErrRecordNotFound)
// into a 404 AppError.
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

func ErrAlreadyExists(err error) *AppError {
	return Wrap(err, CodeAlreadyExists, "resource", "Resource already exists", http.StatusConflict)
}

func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

// ErrNotOwner rejects a mutation against another recipient's data.
func ErrNotOwner(domain string) *AppError {
	return New(CodeForbidden, domain, "Access denied", http.StatusForbidden)
}
