package valuetypes

import (
	"strings"

	"github.com/diwise/component-model/pkg/model/errors"
)

// Sanitizer is an opaque, pure value transform applied before a value is
// stored, such as trimming whitespace or compacting arrays.
type Sanitizer struct {
	Name string
	Fn   func(any) any
}

func NewSanitizer(name string, fn func(any) any) Sanitizer {
	return Sanitizer{Name: name, Fn: fn}
}

// Validator is an opaque predicate wrapped with a name and a human readable
// message. Validators express business rules, not shape; shape is enforced by
// the value type check.
type Validator struct {
	Name    string
	Message string
	Fn      func(any) bool
}

func NewValidator(name, message string, fn func(any) bool) Validator {
	return Validator{Name: name, Message: message, Fn: fn}
}

// Failure pairs a failed validator with the path where it failed, built from
// array indices and nested attribute names, such as actors[0].name.
type Failure struct {
	Validator Validator
	Path      string
}

// ValidationError aggregates every failed validator into a single error that
// still carries the structured detail for programmatic handling.
type ValidationError struct {
	failures []Failure
}

func NewValidationError(failures []Failure) *ValidationError {
	return &ValidationError{failures: failures}
}

func (e *ValidationError) Failures() []Failure {
	return e.failures
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.failures))
	for _, f := range e.failures {
		msg := f.Validator.Message
		if msg == "" {
			msg = "validator " + f.Validator.Name + " failed"
		}
		if f.Path != "" {
			msg = msg + " (path: '" + f.Path + "')"
		}
		messages = append(messages, msg)
	}
	return strings.Join(messages, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == errors.ErrValidationFailed
}

// PrefixFailures rebases failure paths under the given prefix, inserting a
// dot separator unless the nested path is an array index.
func PrefixFailures(failures []Failure, prefix string) []Failure {
	result := make([]Failure, 0, len(failures))
	for _, f := range failures {
		path := prefix
		if f.Path != "" {
			if strings.HasPrefix(f.Path, "[") {
				path = prefix + f.Path
			} else {
				path = prefix + "." + f.Path
			}
		}
		result = append(result, Failure{Validator: f.Validator, Path: path})
	}
	return result
}
