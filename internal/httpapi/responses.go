package httpapi

import (
	"errors"
	"net/http"

	"github.com/darshan-rambhia/goftp"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse is the body of every successful JSON request.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Common error messages
const (
	ErrInvalidRequest = "invalid request"
	ErrNotFound       = "not found"
	ErrUnavailable    = "ftp pool unavailable"
	ErrRemoteFailure  = "remote operation failed"
)

func respondError(c *gin.Context, statusCode int, errorMsg, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorMsg,
		Message: message,
		Code:    statusCode,
	})
}

func respondSuccess(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// respondOpError maps processor errors to HTTP status codes.
func respondOpError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, goftp.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, goftp.ErrPoolExhausted),
		errors.Is(err, goftp.ErrTimeout),
		errors.Is(err, goftp.ErrPoolClosed),
		errors.Is(err, goftp.ErrNotInitialized):
		respondError(c, http.StatusServiceUnavailable, ErrUnavailable, err.Error())
	default:
		respondError(c, http.StatusBadGateway, ErrRemoteFailure, err.Error())
	}
}
