package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "socialchat-backend/pkg/errors"
	"socialchat-backend/pkg/logger"
)

// Response is the envelope of every chat API response
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

// ErrorDetail is the error part of a failed response
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func meta(c *gin.Context) Meta {
	m := Meta{Timestamp: time.Now().UTC()}
	if v, ok := c.Get("request_id"); ok {
		m.RequestID, _ = v.(string)
	}
	return m
}

// Success writes data with the given status
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta(c)})
}

// Error writes a failed response without details
func Error(c *gin.Context, statusCode int, code, message string) {
	abort(c, statusCode, &ErrorDetail{Code: code, Message: message})
}

func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, string(apperrors.ErrCodeValidation), message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, string(apperrors.ErrCodeUnauthorized), message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), message)
}

// FromError maps err to its status, code and details. Anything that is not
// an AppError becomes a 500 with the cause logged and hidden from the client.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Chat request failed",
			zap.String("route", c.FullPath()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}
	abort(c, appErr.StatusCode, &ErrorDetail{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func abort(c *gin.Context, statusCode int, detail *ErrorDetail) {
	c.AbortWithStatusJSON(statusCode, Response{Error: detail, Meta: meta(c)})
}
