package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Business codes. The first three digits follow the HTTP status they are
// sent with.
const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeTokenExpired       = 40102
	CodeDocumentNotFound   = 40401
	CodeChatNotFound       = 40402
	CodeUserNotFound       = 40403
	CodeUsernameExists     = 40900
	CodeDocumentBusy       = 40901
	CodeEmailExists        = 40902
	CodeFileTooLarge       = 41300
	CodeUnsupportedType    = 41500
	CodeTooManyRequests    = 42900
	CodeInternalServer     = 50000
	CodeUnavailable        = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Accepted is OK for work that continues in the background, such as
// ingestion.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// Abort writes an error and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
