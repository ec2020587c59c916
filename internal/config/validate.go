// ABOUTME: Struct validation with readable messages
// ABOUTME: Names fields by their flag so errors point at what to change
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid setting
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// ValidationError lists every invalid setting
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a config struct against its validate tags
func Validate(c any) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("--%s is required", fe.Field())
		case "min":
			message = fmt.Sprintf("--%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			message = fmt.Sprintf("--%s must not exceed %s", fe.Field(), fe.Param())
		case "oneof":
			message = fmt.Sprintf("--%s must be one of: %s", fe.Field(), fe.Param())
		case "hostname_port":
			message = fmt.Sprintf("--%s must be host:port", fe.Field())
		default:
			message = fmt.Sprintf("--%s is invalid", fe.Field())
		}
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Code:    strings.ToUpper(fe.Tag()),
			Message: message,
		})
	}
	return out
}
