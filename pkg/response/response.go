package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/handoff/pkg/errors"
)

// Response is the JSON envelope every HTTP endpoint returns.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the client-visible part of an AppError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes cursor pagination. NextBeforeID is the cursor for the next older page and is
// omitted once the history is exhausted.
type Meta struct {
	Limit        int    `json:"limit,omitempty"`
	Count        int    `json:"count"`
	NextBeforeID *int64 `json:"next_before_id,omitempty"`
}

// Success writes data with the given status.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// SuccessWithMeta writes data plus pagination metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error renders err as an AppError envelope.
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// ErrorWithData renders err and still includes a data payload, for endpoints such as readiness
// probes whose failure body is informative. The internal cause is recorded on the gin context
// for the request logger and never rendered.
func ErrorWithData(c *gin.Context, err error, data any) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	if appErr.Internal != nil {
		_ = c.Error(appErr.Internal)
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Response{
		Data:  data,
		Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message},
	})
}
