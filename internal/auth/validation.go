package auth

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// relpath restricts callback targets to same-site relative paths, so a
// crafted callback_url cannot bounce the browser off-site after sign-in.
// "//host" is rejected too: browsers treat it as protocol-relative.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			return strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//")
		})
	}
}
