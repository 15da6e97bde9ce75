package response

import "github.com/gin-gonic/gin"

// RespondJSON writes a success envelope
func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, APIResponse{
		Error:   false,
		Message: message,
		Data:    data,
	})
}

// RespondError writes an error envelope
func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Error:   true,
		Message: message,
	})
}
