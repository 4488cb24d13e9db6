// Package validation runs go-playground/validator over request structs and
// reports the first failure as a CodeValidation domain error.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
)

// Registry-specific tags, usable alongside the validator built-ins.
var customTags = map[string]validator.Func{
	"notblank": func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	},
	"address": func(fl validator.FieldLevel) bool {
		_, err := domain.ParseAddress(fl.Field().String())
		return err == nil
	},
	"hash32": func(fl validator.FieldLevel) bool {
		_, err := domain.ParseHash32(fl.Field().String())
		return err == nil
	},
}

// messages maps a tag to its message. %[1]s is the field, %[2]s the tag param.
var messages = map[string]string{
	"required": "%[1]s is required",
	"notblank": "%[1]s must not be blank",
	"address":  "%[1]s must be a 0x-prefixed 20-byte hex address",
	"hash32":   "%[1]s must be a 32-byte hex hash",
	"base64":   "%[1]s must be base64",
	"url":      "%[1]s must be a valid url",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
	"gte":      "%[1]s must be at least %[2]s",
	"oneof":    "%[1]s must be one of [%[2]s]",
}

var std = build()

func build() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	for tag, fn := range customTags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s: %v", tag, err))
		}
	}
	return v
}

// jsonName reports fields by their JSON key so messages match the request body.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// Validate checks req against its validate tags.
func Validate(req any) error {
	if err := std.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage describes the first field error in err.
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	fe := fieldErrs[0]
	if format, ok := messages[fe.ActualTag()]; ok {
		return fmt.Sprintf(format, fe.Field(), fe.Param())
	}
	if fe.Field() == "" {
		return "invalid request body"
	}
	return fe.Field() + " is invalid"
}
