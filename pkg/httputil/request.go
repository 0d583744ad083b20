package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"min":      "%s must be at least %s characters",
	"max":      "%s must be at most %s bytes",
	"oneof":    "%s must be one of %s",
}

// ValidationErrors is a validation failure with one message per JSON field
type ValidationErrors struct {
	Err    *auth.Error
	Fields map[string]string
}

func (e *ValidationErrors) Error() string {
	return e.Err.Error()
}

func (e *ValidationErrors) Unwrap() error {
	return e.Err
}

func fieldMessage(fe validator.FieldError) string {
	if tpl, ok := fieldMessages[fe.Tag()]; ok {
		if strings.Count(tpl, "%s") == 2 {
			return fmt.Sprintf(tpl, fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
		}
		return fmt.Sprintf(tpl, fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// Validate checks struct tags on dest and returns a Validation error naming
// the first failing field, with every failing field in Fields
func Validate(dest interface{}) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return auth.Validation("invalid request")
	}

	fields := make(map[string]string, len(fieldErrs))
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fieldMessage(fe)
		names = append(names, fe.Field())
	}
	sort.Strings(names)
	return &ValidationErrors{
		Err:    auth.Validation(fields[names[0]]),
		Fields: fields,
	}
}

// ParseJSON decodes the request body into dest and validates it. An empty
// body decodes as an empty object so required-field errors are reported.
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
		if err := dec.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
			return auth.Validation("request body must be valid JSON")
		}
	}
	return Validate(dest)
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", auth.Validation(fmt.Sprintf("missing path parameter: %s", key))
	}
	return str, nil
}
