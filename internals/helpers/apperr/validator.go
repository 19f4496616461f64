package apperr

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their json name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// FromValidator converts validator.ValidationErrors into a ValidationError.
// Other errors are returned unchanged.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out.Add(fe.Field(), "is required")
		case "email":
			out.Add(fe.Field(), "is not a valid email")
		case "min":
			out.Add(fe.Field(), "must be at least "+fe.Param())
		case "max":
			out.Add(fe.Field(), "must be at most "+fe.Param())
		case "oneof":
			out.Add(fe.Field(), "must be one of "+fe.Param())
		case "uuid", "uuid4":
			out.Add(fe.Field(), "must be a UUID")
		default:
			out.Add(fe.Field(), "is invalid")
		}
	}
	return out
}
