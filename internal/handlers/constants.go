package handlers

const (
	ErrInvalidJSON         = "Invalid JSON body"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrTooManyRequests     = "Too many requests"
	ErrInternalServerError = "Internal server error"
	ErrNotFound            = "Not found"
)
