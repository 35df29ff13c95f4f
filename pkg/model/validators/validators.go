// Package validators provides ready made validators for the most common
// business rules, backed by the go-playground validation engine.
package validators

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/diwise/component-model/pkg/model/valuetypes"
)

var validate = validator.New()

func fromTag(name, message, tag string) valuetypes.Validator {
	return valuetypes.NewValidator(name, message, func(v any) bool {
		return validate.Var(v, tag) == nil
	})
}

// NotEmpty rejects empty strings, zero values and empty containers.
func NotEmpty() valuetypes.Validator {
	return fromTag("notEmpty", "the value cannot be empty", "required")
}

// MinLength rejects strings and containers shorter than min.
func MinLength(min int) valuetypes.Validator {
	return fromTag(
		fmt.Sprintf("minLength(%d)", min),
		fmt.Sprintf("the value must be at least %d characters long", min),
		fmt.Sprintf("min=%d", min),
	)
}

// MaxLength rejects strings and containers longer than max.
func MaxLength(max int) valuetypes.Validator {
	return fromTag(
		fmt.Sprintf("maxLength(%d)", max),
		fmt.Sprintf("the value must be at most %d characters long", max),
		fmt.Sprintf("max=%d", max),
	)
}

// Email rejects strings that are not valid e-mail addresses.
func Email() valuetypes.Validator {
	return fromTag("email", "the value must be a valid e-mail address", "email")
}

// URL rejects strings that are not valid URLs.
func URL() valuetypes.Validator {
	return fromTag("url", "the value must be a valid URL", "url")
}

// Positive rejects numbers that are zero or negative.
func Positive() valuetypes.Validator {
	return fromTag("positive", "the value must be positive", "gt=0")
}

// Range rejects numbers outside the inclusive interval [min, max].
func Range(min, max float64) valuetypes.Validator {
	return fromTag(
		fmt.Sprintf("range(%v, %v)", min, max),
		fmt.Sprintf("the value must be between %v and %v", min, max),
		fmt.Sprintf("gte=%v,lte=%v", min, max),
	)
}
