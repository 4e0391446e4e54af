package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"authcore/internal/logger"
	"authcore/internal/service"
	"authcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var ErrTooManyRequests = errors.New("too many requests")

// ErrorHandling turns the last error recorded on the context, or a panic,
// into the JSON envelope. Handlers and guards only call c.Error.
func ErrorHandling(log *logrus.Logger) gin.HandlerFunc {
	log = logger.OrStandard(log)
	return func(c *gin.Context) {
		defer handle(c, log)
		c.Next()
	}
}

func handle(c *gin.Context, log *logrus.Logger) {
	if ret := recover(); ret != nil {
		err, ok := ret.(error)
		if !ok {
			err = fmt.Errorf("%v", ret)
		}
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("panic while serving request")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			response.ErrorWithCode(http.StatusInternalServerError, "internal_error", "internal server error"))
		return
	}

	last := c.Errors.Last()
	if last == nil || c.Writer.Written() {
		return
	}
	status, code, msg := classify(last.Err)
	if status >= http.StatusInternalServerError {
		log.WithError(last.Err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.JSON(status, response.ErrorWithCode(status, code, msg))
}

// classify maps an error onto status, code and client-facing message. Every
// authentication failure gets the same answer.
func classify(err error) (int, string, string) {
	var validationErrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case service.IsAuthenticationError(err):
		return http.StatusUnauthorized, "unauthorized", "could not validate credentials"
	case errors.Is(err, service.ErrAccountDisabled):
		return http.StatusForbidden, "account_disabled", "account is disabled"
	case errors.Is(err, service.ErrResourceUnregistered):
		return http.StatusForbidden, "resource_unregistered", "resource is not registered"
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "you do not have access to this resource"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later"
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest, "invalid_input", validationErrs.Error()
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest, "invalid_input", "malformed request body"
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}
