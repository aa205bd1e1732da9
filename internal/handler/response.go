package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/service"
)

// ErrorBody is the machine readable part of an error response.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Internal causes are attached to the context for logging, never sent.
func respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		svcErr = &service.Error{Kind: service.KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
	}
	if svcErr.Kind == service.KindInternal {
		_ = c.Error(err)
	}

	message := svcErr.Message
	if svcErr.Kind == service.KindInternal {
		message = "internal error"
	}
	c.JSON(mapErrorToHTTPStatus(svcErr.Kind), ErrorResponse{Error: ErrorBody{
		Kind:    string(svcErr.Kind),
		Code:    svcErr.Code,
		Message: message,
	}})
}

// respondBadRequest rejects a request that could not be decoded.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Kind:    string(service.KindValidation),
		Code:    "INVALID_REQUEST_BODY",
		Message: message,
	}})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service error kinds to HTTP status codes.
func mapErrorToHTTPStatus(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	case service.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
