package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/settlement-closer/internal/api_gateway/middleware"
	"github.com/settlement-closer/internal/domain/settlement"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondAccepted sends a 202 Accepted response with data.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// errorStatus maps settlement errors to an HTTP status. Internal consistency
// failures surface as a generic 500.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, settlement.ErrSettlementNotFound{}):
		return http.StatusNotFound, settlement.ReasonSettlementNotFound, "Settlement not found"
	case errors.Is(err, settlement.ErrNotPermitted{}):
		return http.StatusForbidden, settlement.ReasonNotPermitted, "Not permitted to close this settlement"
	case errors.Is(err, settlement.ErrNoParticipants{}):
		return http.StatusUnprocessableEntity, settlement.ReasonNoParticipants, "Settlement has no participants"
	case errors.Is(err, settlement.ErrSettlementClosed{}):
		return http.StatusConflict, settlement.ReasonSettlementNotOpen, "Settlement is not open"
	case errors.Is(err, settlement.ErrConcurrentModification{}):
		return http.StatusConflict, settlement.ReasonConflict, "Settlement changed while closing, retry the request"
	case errors.Is(err, settlement.ErrSnapshotNotFound{}):
		return http.StatusNotFound, settlement.ReasonSnapshotNotFound, "Snapshot not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Outcome unknown, the request is safe to retry"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred"
	}
}

// RespondWithDomainError sends the status and reason code matching err
func RespondWithDomainError(c *gin.Context, err error) {
	status, code, message := errorStatus(err)
	RespondWithError(c, status, code, message)
}
