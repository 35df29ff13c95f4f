package errors

import "fmt"

var ErrInvalidSelector = fmt.Errorf("invalid attribute selector")
var ErrEmptySelector = fmt.Errorf("cannot pick with an empty attribute selector")
var ErrPickFromScalar = fmt.Errorf("cannot pick attributes from a scalar value")
var ErrRemoveFromUniversalSelector = fmt.Errorf("cannot remove an attribute selector from a universal selector")
var ErrTypeMismatch = fmt.Errorf("value does not match the attribute type")
var ErrUnsetAttribute = fmt.Errorf("attribute value is unset")
var ErrImmutableIdentifier = fmt.Errorf("primary identifiers are immutable once assigned")
var ErrControlledAttribute = fmt.Errorf("controlled attributes only accept values from the server or the store")
var ErrValidationFailed = fmt.Errorf("validation failed")
var ErrComponentTypeMismatch = fmt.Errorf("component type mismatch")
var ErrDuplicateIdentifier = fmt.Errorf("identifier is already mapped to a live instance")
var ErrUnknownComponentType = fmt.Errorf("unknown component type")

type modelError struct {
	msg    string
	target error
}

func (m modelError) Error() string        { return m.msg }
func (m modelError) Is(target error) bool { return target == m.target }

func NewInvalidSelectorError(msg string) error {
	return &modelError{msg: msg, target: ErrInvalidSelector}
}

func NewEmptySelectorError(msg string) error {
	return &modelError{msg: msg, target: ErrEmptySelector}
}

func NewPickFromScalarError(msg string) error {
	return &modelError{msg: msg, target: ErrPickFromScalar}
}

func NewRemoveFromUniversalSelectorError(msg string) error {
	return &modelError{msg: msg, target: ErrRemoveFromUniversalSelector}
}

func NewTypeMismatchError(msg string) error {
	return &modelError{msg: msg, target: ErrTypeMismatch}
}

func NewUnsetAttributeError(msg string) error {
	return &modelError{msg: msg, target: ErrUnsetAttribute}
}

func NewImmutableIdentifierError(msg string) error {
	return &modelError{msg: msg, target: ErrImmutableIdentifier}
}

func NewControlledAttributeError(msg string) error {
	return &modelError{msg: msg, target: ErrControlledAttribute}
}

func NewComponentTypeMismatchError(msg string) error {
	return &modelError{msg: msg, target: ErrComponentTypeMismatch}
}

func NewDuplicateIdentifierError(msg string) error {
	return &modelError{msg: msg, target: ErrDuplicateIdentifier}
}

func NewUnknownComponentTypeError(msg string) error {
	return &modelError{msg: msg, target: ErrUnknownComponentType}
}
