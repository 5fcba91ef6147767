package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs validator/v10 tag validation outside of gin binding
// (decoded records, CLI inputs).
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ProcessValidationErrors flattens validator errors into field -> message,
// the shape the HTTP handlers return.
func ProcessValidationErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			out[field] = field + " is required"
		case "oneof":
			out[field] = field + " must be one of: " + fe.Param()
		default:
			out[field] = field + " is invalid"
		}
	}
	return out
}
