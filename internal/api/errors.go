package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

const (
	msgRouteNotFound  = "Route not found"
	msgInternalError  = "Internal server error"
	msgInvalidBody    = "Invalid request body"
	msgEntityTooLarge = "Request entity too large"
)

// ErrorDetail is the error object of a failed response
type ErrorDetail struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// ErrorResponse is the body of every failed response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// NewErrorResponse creates an ErrorResponse
func NewErrorResponse(message string, code int) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: code,
		},
	}
}

// StatusForCategory maps an error category to its HTTP status code
func StatusForCategory(category errors.ErrorCategory) int {
	switch category {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryLimit:
		return http.StatusTooManyRequests
	case errors.CategoryImageProvider, errors.CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// resolveError returns the status code and client message for err.
// Uncategorized errors and internal server errors never leak their text,
// unless the error was built with a public message.
func resolveError(err error) (code int, message string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound:
			return he.Code, msgRouteNotFound
		case http.StatusRequestEntityTooLarge:
			return he.Code, msgEntityTooLarge
		}
		if msg, ok := he.Message.(string); ok && msg != "" {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		code = StatusForCategory(ee.Category)
		if code == http.StatusInternalServerError && !ee.IsPublic() {
			return code, msgInternalError
		}
		return code, errors.ScrubMessage(ee.Error())
	}

	return http.StatusInternalServerError, msgInternalError
}

// HTTPErrorHandler writes every error as an ErrorResponse
func (s *Server) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := resolveError(err)

	if code >= http.StatusInternalServerError {
		s.log.WithContext(c.Request().Context()).Error("request failed",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Request().URL.Path),
			logger.Int("status", code),
			logger.String("category", string(errors.CategoryOf(err))),
			logger.Error(err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, NewErrorResponse(message, code))
	}
	if writeErr != nil {
		s.log.Warn("failed to write error response", logger.Error(writeErr))
	}
}

// validationError joins several validation messages into one error
func validationError(messages []string) error {
	return errors.ValidationError(strings.Join(messages, ", "))
}
