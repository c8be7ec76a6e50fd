// Package validate checks request structs against their `validate` tags and
// reports failures as apperr.ErrValidation.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"contracthub/internal/apperr"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	// 错误信息里使用 json 字段名
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates s and joins every field failure into one message.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(msgs, "; "))
}

// maxMoney bounds amounts to what a NUMERIC(14, 2) column can hold.
var maxMoney = decimal.New(1, 12)

// Money accepts a positive amount with at most two decimal places that fits
// a NUMERIC(14, 2) column.
func Money(field string, d decimal.Decimal) error {
	switch {
	case !d.IsPositive():
		return fmt.Errorf("%w: %s must be greater than 0", apperr.ErrValidation, field)
	case !d.Equal(d.Truncate(2)):
		return fmt.Errorf("%w: %s must have at most 2 decimal places", apperr.ErrValidation, field)
	case d.GreaterThanOrEqual(maxMoney):
		return fmt.Errorf("%w: %s must be less than %s", apperr.ErrValidation, field, maxMoney)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "url", "http_url":
		return field + " must be a valid http(s) URL"
	}
	return fmt.Sprintf("%s failed %q", field, fe.Tag())
}
