package certificates

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// RequestValidator checks requests with struct tags and reports failures by
// form field name
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator registers the addr rule and json field naming
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("addr", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		// the pattern's [^@] classes would otherwise admit CR/LF into mail headers
		return emailPattern.MatchString(addr) && strings.IndexFunc(addr, unicode.IsControl) < 0
	})
	return &RequestValidator{validate: v}
}

// Validate normalizes req in place and returns a *ValidationError listing
// every failing field
func (v *RequestValidator) Validate(req *Request) error {
	if req == nil {
		return &ValidationError{Fields: map[string]string{"request": "is required"}}
	}
	req.Normalize()

	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return &ValidationError{Fields: map[string]string{"request": err.Error()}}
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "max":
		return "must be between 1 and 12"
	case "gtefield":
		return "must not be before the start date"
	case "addr":
		return "is not a valid email address"
	case "oneof":
		return "must be one of " + strings.Join(Grades, ", ")
	default:
		return "is invalid"
	}
}
