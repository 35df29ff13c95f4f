// Package attributes implements the typed, observable values of a component
// instance. An attribute combines a property with a value type, an optional
// default, optional accessor strategies and an observer set that fires when
// the stored value changes.
package attributes

import (
	"fmt"
	"reflect"
	"time"

	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/observable"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/selectors"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

// Source names where an attribute value originated. Controlled attributes
// only accept values from the server or the store.
type Source string

const (
	SourceLocal  Source = "local"
	SourceServer Source = "server"
	SourceStore  Source = "store"
	SourceClient Source = "client"
)

// Delta describes a single value transition.
type Delta struct {
	Previous any
	New      any
}

// Getter computes the value of a derived attribute from its owner.
type Getter func(owner properties.Owner) (any, error)

// Setter delegates assignments to an external backing store. Attributes with
// a setter never store the value themselves.
type Setter func(owner properties.Owner, value any) error

// IdentityRegistrar is implemented by owners that maintain an identity map
// keyed by their primary identifier.
type IdentityRegistrar interface {
	RegisterInstance(id any) error
	UnregisterInstance(id any)
}

type identifierRole int

const (
	roleNone identifierRole = iota
	rolePrimary
	roleSecondary
)

// Attribute is a typed, observable member of a component instance.
type Attribute struct {
	properties.Property

	valueType    valuetypes.ValueType
	defaultValue func(owner properties.Owner) any
	getter       Getter
	setter       Setter
	controlled   bool
	role         identifierRole

	isSet     bool
	value     any
	source    Source
	ownsValue bool
	observers observable.Set
}

type AttributeDecoratorFunc func(a *Attribute)

// Default assigns a fixed default value, applied on instantiation when no
// explicit value was provided.
func Default(value any) AttributeDecoratorFunc {
	return func(a *Attribute) {
		a.defaultValue = func(properties.Owner) any { return value }
	}
}

// DefaultFunc assigns a default value generator, evaluated once per instance
// with the owning component as its argument.
func DefaultFunc(fn func(owner properties.Owner) any) AttributeDecoratorFunc {
	return func(a *Attribute) {
		a.defaultValue = fn
	}
}

// Computed turns the attribute into a derived value that is recomputed from
// its owner on every read. Without an accompanying setter, computed
// attributes reject assignment; they always reject unset.
func Computed(getter Getter) AttributeDecoratorFunc {
	return func(a *Attribute) {
		a.getter = getter
	}
}

// WithSetter routes assignments to an external backing store instead of the
// attribute's own value slot. Usually paired with Computed, so reads come
// from the same store.
func WithSetter(setter Setter) AttributeDecoratorFunc {
	return func(a *Attribute) {
		a.setter = setter
	}
}

// Controlled restricts assignment to values originating from the server or
// the store.
func Controlled() AttributeDecoratorFunc {
	return func(a *Attribute) {
		a.controlled = true
	}
}

// Exposed marks an operation as remotely accessible under the given setting.
func Exposed(op properties.Operation, setting properties.ExposureSetting) AttributeDecoratorFunc {
	return func(a *Attribute) {
		a.Expose(op, setting)
	}
}

func New(name string, valueType valuetypes.ValueType, owner properties.Owner, decorators ...AttributeDecoratorFunc) *Attribute {
	a := &Attribute{
		Property:  properties.New(name, owner),
		valueType: valueType,
		ownsValue: true,
	}

	for _, decorator := range decorators {
		decorator(a)
	}

	return a
}

func (a *Attribute) Type() valuetypes.ValueType {
	return a.valueType
}

func (a *Attribute) IsSet() bool {
	return a.isSet
}

func (a *Attribute) Source() Source {
	return a.source
}

func (a *Attribute) IsControlled() bool {
	return a.controlled
}

func (a *Attribute) IsComputed() bool {
	return a.getter != nil
}

func (a *Attribute) HasDefault() bool {
	return a.defaultValue != nil
}

func (a *Attribute) IsIdentifier() bool {
	return a.role != roleNone
}

func (a *Attribute) IsPrimaryIdentifier() bool {
	return a.role == rolePrimary
}

// Describe returns a single line name and type description for introspection.
func (a *Attribute) Describe() string {
	return fmt.Sprintf("%s: %s", a.Name(), a.valueType.String())
}

// SetValue checks, sanitizes and stores a new value. Observers are notified
// unless the stored value and its source are unchanged by the assignment.
func (a *Attribute) SetValue(value any, source Source) (Delta, error) {
	if a.getter != nil && a.setter == nil {
		return Delta{}, fmt.Errorf("attribute '%s' is derived and cannot be assigned", a.Name())
	}

	if a.controlled && source != SourceServer && source != SourceStore {
		return Delta{}, errors.NewControlledAttributeError(
			fmt.Sprintf("attribute '%s' does not accept values of %s origin", a.Name(), source),
		)
	}

	return a.apply(value, source)
}

func (a *Attribute) apply(value any, source Source) (Delta, error) {
	if err := a.valueType.Check(value); err != nil {
		return Delta{}, err
	}

	value = a.valueType.Sanitize(value)

	// a setter owns the value; nothing is stored or tracked locally
	if a.setter != nil {
		if err := a.setter(a.Owner(), value); err != nil {
			return Delta{}, err
		}
		return Delta{}, nil
	}

	if a.isSet && valueEquals(a.value, value) {
		if a.source == source {
			return Delta{Previous: a.value, New: a.value}, nil
		}
		a.source = source
		return Delta{Previous: a.value, New: a.value}, nil
	}

	if a.role == rolePrimary {
		if a.isSet {
			return Delta{}, errors.NewImmutableIdentifierError(
				fmt.Sprintf("identifier '%s' has already been assigned", a.Name()),
			)
		}
		if registrar, ok := a.Owner().(IdentityRegistrar); ok {
			if err := registrar.RegisterInstance(value); err != nil {
				return Delta{}, err
			}
		}
	}

	previous := a.value

	if observed, ok := previous.(observable.Observable); ok {
		observed.Unobserve(a)
	}

	a.value = value
	a.isSet = true
	a.source = source
	a.ownsValue = true

	if observed, ok := value.(observable.Observable); ok {
		observed.Observe(a)
	}

	a.observers.Call()

	return Delta{Previous: previous, New: value}, nil
}

type valueConfig struct {
	allowUnset bool
}

type ValueOption func(*valueConfig)

// AllowUnset makes Value return nil instead of an error when no value has
// been assigned.
func AllowUnset() ValueOption {
	return func(c *valueConfig) { c.allowUnset = true }
}

// Value returns the current value. Derived attributes are recomputed on
// every read. Container values inherited from a fork template are copied
// before they are handed out, so callers can never mutate the template.
func (a *Attribute) Value(opts ...ValueOption) (any, error) {
	cfg := valueConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if a.getter != nil {
		return a.getter(a.Owner())
	}

	if !a.isSet {
		if cfg.allowUnset {
			return nil, nil
		}
		return nil, errors.NewUnsetAttributeError(
			fmt.Sprintf("attribute '%s' has no value", a.Name()),
		)
	}

	if !a.ownsValue {
		a.value = deepCopyValue(a.value)
		a.ownsValue = true
	}

	return a.value, nil
}

// UnsetValue clears the stored value and notifies observers. Unsetting an
// attribute that is already unset is a no-op. Unsetting a primary identifier
// removes the owner's identity mapping.
func (a *Attribute) UnsetValue() error {
	if a.getter != nil {
		return fmt.Errorf("attribute '%s' is derived and cannot be unset", a.Name())
	}

	if !a.isSet {
		return nil
	}

	if a.role == rolePrimary {
		if registrar, ok := a.Owner().(IdentityRegistrar); ok {
			registrar.UnregisterInstance(a.value)
		}
	}

	if observed, ok := a.value.(observable.Observable); ok {
		observed.Unobserve(a)
	}

	a.value = nil
	a.isSet = false
	a.source = ""
	a.ownsValue = true

	a.observers.Call()

	return nil
}

// EvaluateDefault assigns the default value to an unset attribute. Attributes
// without a default, derived attributes and attributes that already hold a
// value are left untouched.
func (a *Attribute) EvaluateDefault() error {
	if a.isSet || a.getter != nil || a.defaultValue == nil {
		return nil
	}

	_, err := a.apply(a.defaultValue(a.Owner()), SourceLocal)
	return err
}

// RunValidators evaluates the value type's validator chain against the
// current value. Unset attributes are considered valid until a value is
// assigned.
func (a *Attribute) RunValidators(s selectors.Selector) ([]valuetypes.Failure, error) {
	value := a.value

	if a.getter != nil {
		computed, err := a.getter(a.Owner())
		if err != nil {
			return nil, err
		}
		value = computed
	} else if !a.isSet {
		return nil, nil
	}

	return a.valueType.RunValidators(value, s)
}

func (a *Attribute) Validate(s selectors.Selector) error {
	failures, err := a.RunValidators(s)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		return valuetypes.NewValidationError(failures)
	}
	return nil
}

func (a *Attribute) IsValid(s selectors.Selector) bool {
	return a.Validate(s) == nil
}

// Fork returns a copy of the attribute bound to a new owner. The copy shares
// the stored value until either side hands it out, at which point container
// values are copied.
func (a *Attribute) Fork(newOwner properties.Owner) *Attribute {
	return &Attribute{
		Property:     a.Property.Fork(newOwner),
		valueType:    a.valueType,
		defaultValue: a.defaultValue,
		getter:       a.getter,
		setter:       a.setter,
		controlled:   a.controlled,
		role:         a.role,
		isSet:        a.isSet,
		value:        a.value,
		source:       a.source,
		ownsValue:    false,
	}
}

func (a *Attribute) Observe(o observable.Observer) {
	a.observers.Add(o)
}

func (a *Attribute) Unobserve(o observable.Observer) {
	a.observers.Remove(o)
}

// Notify propagates a change in an observed container value to the
// attribute's own observers.
func (a *Attribute) Notify() {
	a.observers.Call()
}

func valueEquals(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

func deepCopyValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		copied := make(map[string]any, len(value))
		for k, element := range value {
			copied[k] = deepCopyValue(element)
		}
		return copied
	case []any:
		copied := make([]any, 0, len(value))
		for _, element := range value {
			copied = append(copied, deepCopyValue(element))
		}
		return copied
	default:
		return v
	}
}
