// Package valuetypes implements the type descriptors that govern checking,
// sanitization and validation of attribute values. A value type is one of
// boolean, number, string, date, regexp, plain object, array-of or a
// component reference, each with an optional flag. Non optional types reject
// undefined values.
package valuetypes

import (
	"fmt"
	"regexp"
	"time"

	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/selectors"
)

// Component is implemented by entity instances so that component references
// can check values and recurse into nested attribute validators.
type Component interface {
	ComponentName() string
	RunValidators(s selectors.Selector) ([]Failure, error)
}

// ValueType describes and enforces the shape of an attribute value.
type ValueType interface {
	fmt.Stringer

	IsOptional() bool
	Check(v any) error
	Sanitize(v any) any
	RunValidators(v any, s selectors.Selector) ([]Failure, error)
}

type baseType struct {
	optional   bool
	sanitizers []Sanitizer
	validators []Validator
}

type TypeOption func(*baseType)

// Optional marks the type as accepting undefined values.
func Optional() TypeOption {
	return func(b *baseType) { b.optional = true }
}

func WithSanitizers(sanitizers ...Sanitizer) TypeOption {
	return func(b *baseType) { b.sanitizers = append(b.sanitizers, sanitizers...) }
}

func WithValidators(validators ...Validator) TypeOption {
	return func(b *baseType) { b.validators = append(b.validators, validators...) }
}

func newBase(opts []TypeOption) baseType {
	b := baseType{}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b baseType) IsOptional() bool {
	return b.optional
}

func (b baseType) Sanitize(v any) any {
	if v == nil {
		return nil
	}
	for _, s := range b.sanitizers {
		v = s.Fn(v)
	}
	return v
}

func (b baseType) runOwnValidators(v any) []Failure {
	if v == nil {
		return nil
	}

	failures := []Failure{}
	for _, validator := range b.validators {
		if !validator.Fn(v) {
			failures = append(failures, Failure{Validator: validator})
		}
	}
	return failures
}

func (b baseType) suffix() string {
	if b.optional {
		return "?"
	}
	return ""
}

func (b baseType) checkUndefined(typeName string, v any) (bool, error) {
	if v != nil {
		return false, nil
	}
	if b.optional {
		return true, nil
	}
	return true, errors.NewTypeMismatchError(
		fmt.Sprintf("a value of type '%s' cannot be undefined", typeName),
	)
}

func mismatch(typeName string, v any) error {
	return errors.NewTypeMismatchError(
		fmt.Sprintf("expected a value of type '%s', got %T", typeName, v),
	)
}

type booleanType struct{ baseType }

// Boolean returns a value type accepting bool values.
func Boolean(opts ...TypeOption) ValueType {
	return booleanType{newBase(opts)}
}

func (t booleanType) String() string { return "boolean" + t.suffix() }

func (t booleanType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}
	if _, ok := v.(bool); !ok {
		return mismatch(t.String(), v)
	}
	return nil
}

func (t booleanType) RunValidators(v any, _ selectors.Selector) ([]Failure, error) {
	return t.runOwnValidators(v), nil
}

type numberType struct{ baseType }

// Number returns a value type accepting numeric values. Integers are
// accepted on check and coerced to float64 by the sanitizer, so stored
// numbers always compare by value.
func Number(opts ...TypeOption) ValueType {
	return numberType{newBase(opts)}
}

func (t numberType) String() string { return "number" + t.suffix() }

func (t numberType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}
	if _, ok := coerceNumber(v); !ok {
		return mismatch(t.String(), v)
	}
	return nil
}

func (t numberType) Sanitize(v any) any {
	if n, ok := coerceNumber(v); ok {
		v = n
	}
	return t.baseType.Sanitize(v)
}

func (t numberType) RunValidators(v any, _ selectors.Selector) ([]Failure, error) {
	return t.runOwnValidators(v), nil
}

func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

type stringType struct{ baseType }

// String returns a value type accepting string values.
func String(opts ...TypeOption) ValueType {
	return stringType{newBase(opts)}
}

func (t stringType) String() string { return "string" + t.suffix() }

func (t stringType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}
	if _, ok := v.(string); !ok {
		return mismatch(t.String(), v)
	}
	return nil
}

func (t stringType) RunValidators(v any, _ selectors.Selector) ([]Failure, error) {
	return t.runOwnValidators(v), nil
}

type dateType struct{ baseType }

// Date returns a value type accepting time.Time values.
func Date(opts ...TypeOption) ValueType {
	return dateType{newBase(opts)}
}

func (t dateType) String() string { return "date" + t.suffix() }

func (t dateType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}
	if _, ok := v.(time.Time); !ok {
		return mismatch(t.String(), v)
	}
	return nil
}

func (t dateType) RunValidators(v any, _ selectors.Selector) ([]Failure, error) {
	return t.runOwnValidators(v), nil
}

type regexpType struct{ baseType }

// RegExp returns a value type accepting compiled regular expressions.
func RegExp(opts ...TypeOption) ValueType {
	return regexpType{newBase(opts)}
}

func (t regexpType) String() string { return "regExp" + t.suffix() }

func (t regexpType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}
	if _, ok := v.(*regexp.Regexp); !ok {
		return mismatch(t.String(), v)
	}
	return nil
}

func (t regexpType) RunValidators(v any, _ selectors.Selector) ([]Failure, error) {
	return t.runOwnValidators(v), nil
}

type objectType struct{ baseType }

// Object returns a value type accepting plain, opaque objects. Validation
// does not recurse into object properties.
func Object(opts ...TypeOption) ValueType {
	return objectType{newBase(opts)}
}

func (t objectType) String() string { return "object" + t.suffix() }

func (t objectType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}
	if _, ok := v.(map[string]any); !ok {
		return mismatch(t.String(), v)
	}
	return nil
}

func (t objectType) RunValidators(v any, _ selectors.Selector) ([]Failure, error) {
	return t.runOwnValidators(v), nil
}

type arrayType struct {
	baseType
	element ValueType
}

// ArrayOf returns a value type accepting arrays whose elements all match the
// given element type. Sanitizer and validator chains compose per nesting
// level.
func ArrayOf(element ValueType, opts ...TypeOption) ValueType {
	return arrayType{baseType: newBase(opts), element: element}
}

func (t arrayType) String() string { return "[" + t.element.String() + "]" + t.suffix() }

func (t arrayType) Element() ValueType { return t.element }

func (t arrayType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}

	elements, ok := v.([]any)
	if !ok {
		return mismatch(t.String(), v)
	}

	for i, element := range elements {
		if err := t.element.Check(element); err != nil {
			return fmt.Errorf("element %d of array failed its type check: %w", i, err)
		}
	}

	return nil
}

func (t arrayType) Sanitize(v any) any {
	if elements, ok := v.([]any); ok {
		sanitized := make([]any, 0, len(elements))
		for _, element := range elements {
			sanitized = append(sanitized, t.element.Sanitize(element))
		}
		v = sanitized
	}
	return t.baseType.Sanitize(v)
}

func (t arrayType) RunValidators(v any, s selectors.Selector) ([]Failure, error) {
	failures := t.runOwnValidators(v)

	elements, ok := v.([]any)
	if !ok {
		return failures, nil
	}

	for i, element := range elements {
		elementFailures, err := t.element.RunValidators(element, s)
		if err != nil {
			return nil, err
		}
		failures = append(failures, PrefixFailures(elementFailures, fmt.Sprintf("[%d]", i))...)
	}

	return failures, nil
}

type componentRefType struct {
	baseType
	componentName string
}

// ComponentRef returns a value type accepting instances of the named
// component type. Validation recurses into the nested instance's attributes
// as described by the selector.
func ComponentRef(componentName string, opts ...TypeOption) ValueType {
	return componentRefType{baseType: newBase(opts), componentName: componentName}
}

func (t componentRefType) String() string { return t.componentName + t.suffix() }

func (t componentRefType) ComponentName() string { return t.componentName }

func (t componentRefType) Check(v any) error {
	if undefined, err := t.checkUndefined(t.String(), v); undefined {
		return err
	}

	component, ok := v.(Component)
	if !ok {
		return mismatch(t.String(), v)
	}

	if component.ComponentName() != t.componentName {
		return errors.NewTypeMismatchError(
			fmt.Sprintf("expected a component of type '%s', got '%s'", t.componentName, component.ComponentName()),
		)
	}

	return nil
}

func (t componentRefType) RunValidators(v any, s selectors.Selector) ([]Failure, error) {
	failures := t.runOwnValidators(v)

	component, ok := v.(Component)
	if !ok {
		return failures, nil
	}

	nested, err := component.RunValidators(s)
	if err != nil {
		return nil, err
	}

	return append(failures, nested...), nil
}
