package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// FieldError is one failed rule. Field is the json name of the struct field, or the name
// passed to ValidateVar.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

func (f FieldError) String() string {
	if f.Param == "" {
		return fmt.Sprintf("%s failed on %s", f.Field, f.Tag)
	}
	return fmt.Sprintf("%s failed on %s=%s", f.Field, f.Tag, f.Param)
}

// ValidationErrors lists every failed rule of one validation call.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct applies the validate tags of s.
func ValidateStruct(s any) error {
	return translate(instance().Struct(s), "")
}

// ValidateVar checks a single value, such as a query parameter, against tag and reports
// failures under field.
func ValidateVar(field string, value any, tag string) error {
	return translate(instance().Var(value, tag), field)
}

func translate(err error, field string) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	out := make(ValidationErrors, len(ve))
	for i, fe := range ve {
		name := field
		if name == "" {
			name = fe.Field()
		}
		out[i] = FieldError{Field: name, Tag: fe.Tag(), Param: fe.Param()}
	}
	return out
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("notblank", validators.NotBlank)
		validate.RegisterTagNameFunc(jsonName)
	})
	return validate
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}
