package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeInvalidChatID      = 40003
	CodePromptEmpty        = 40004
	CodeFileRequired       = 40005
	CodeInvalidChatName    = 40006
	CodeInvalidImage       = 40007
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeNotFound           = 40400
	CodeChatNotFound       = 40401
	CodeFileTooLarge       = 41300
	CodeInternalServer     = 50000
	CodeGenerationFailed   = 50201
	CodeStorageFailed      = 50202
	CodeStorageDisabled    = 50301
)

type APIResponse struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Success: true,
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// With writes the envelope plus top-level fields such as url or persisted.
func With(c *gin.Context, httpStatus int, body APIResponse, extra gin.H) {
	out := gin.H{
		"success": body.Success,
		"code":    body.Code,
	}
	if body.Message != "" {
		out["message"] = body.Message
	}
	if body.Data != nil {
		out["data"] = body.Data
	}
	for k, v := range extra {
		out[k] = v
	}
	c.JSON(httpStatus, out)
}
