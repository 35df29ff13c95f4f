package components

import (
	"context"
	"fmt"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/identity"
	"github.com/diwise/component-model/pkg/model/observable"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/selectors"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

// Component is an instance of a component type. Instances materialize their
// attributes lazily: a forked instance only holds the attributes that have
// been touched since the fork and falls back to its template for the rest.
// Instances are not safe for concurrent use; the identity maps are.
type Component struct {
	definition  *Definition
	template    *Component
	attrs       map[string]*attributes.Attribute
	identityMap *identity.Map
	isNew       bool
	observers   observable.Set
}

type InstanceDecoratorFunc func(c *Component) error

// V assigns an initial attribute value during instantiation.
func V(name string, value any) InstanceDecoratorFunc {
	return func(c *Component) error {
		_, err := c.SetAttributeValue(name, value, attributes.SourceLocal)
		return err
	}
}

// New creates an instance, applies the given decorators and evaluates the
// defaults of every attribute left unset, including generated identifiers.
func (d *Definition) New(decorators ...InstanceDecoratorFunc) (*Component, error) {
	c, err := d.Instantiate(decorators...)
	if err != nil {
		return nil, err
	}

	if err := c.EvaluateDefaults(); err != nil {
		return nil, err
	}

	c.isNew = true

	return c, nil
}

// Instantiate creates an instance without evaluating defaults. It is used
// when the attribute values are known to arrive later, such as during
// deserialization.
func (d *Definition) Instantiate(decorators ...InstanceDecoratorFunc) (*Component, error) {
	c := &Component{
		definition: d,
		attrs:      map[string]*attributes.Attribute{},
	}

	for _, decorator := range decorators {
		if err := decorator(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Component) Definition() *Definition {
	return c.definition
}

func (c *Component) ComponentName() string {
	return c.definition.name
}

// IsNew reports whether the instance has been created locally and not yet
// acknowledged by a store.
func (c *Component) IsNew() bool {
	return c.isNew
}

func (c *Component) MarkNew() {
	c.isNew = true
}

func (c *Component) MarkSaved() {
	c.isNew = false
}

// Attribute returns the named attribute, materializing it from the fork
// template or the definition on first access.
func (c *Component) Attribute(name string) (*attributes.Attribute, error) {
	if a, exists := c.attrs[name]; exists {
		return a, nil
	}

	var a *attributes.Attribute

	if c.template != nil {
		templateAttr, err := c.template.Attribute(name)
		if err != nil {
			return nil, err
		}
		a = templateAttr.Fork(c)
	} else {
		built, err := c.definition.buildAttribute(name, c)
		if err != nil {
			return nil, err
		}
		a = built
	}

	c.attrs[name] = a
	a.Observe(c)

	return a, nil
}

// AttributeValue returns the current value of the named attribute and whether
// it is set at all. Derived attributes always count as set.
func (c *Component) AttributeValue(name string) (any, bool, error) {
	a, err := c.Attribute(name)
	if err != nil {
		return nil, false, err
	}

	if !a.IsSet() && !a.IsComputed() {
		return nil, false, nil
	}

	value, err := a.Value(attributes.AllowUnset())
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (c *Component) SetAttributeValue(name string, value any, source attributes.Source) (attributes.Delta, error) {
	a, err := c.Attribute(name)
	if err != nil {
		return attributes.Delta{}, err
	}

	return a.SetValue(value, source)
}

func (c *Component) UnsetAttributeValue(name string) error {
	a, err := c.Attribute(name)
	if err != nil {
		return err
	}

	return a.UnsetValue()
}

// ForEachAttribute materializes and visits every attribute in declaration
// order until the callback returns an error.
func (c *Component) ForEachAttribute(fn func(name string, a *attributes.Attribute) error) error {
	for _, t := range c.definition.templates {
		a, err := c.Attribute(t.name)
		if err != nil {
			return err
		}
		if err := fn(t.name, a); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateDefaults assigns default values to every unset attribute that
// declares one.
func (c *Component) EvaluateDefaults() error {
	return c.ForEachAttribute(func(_ string, a *attributes.Attribute) error {
		return a.EvaluateDefault()
	})
}

// ID returns the value of the primary identifier.
func (c *Component) ID() (any, error) {
	name := c.definition.primaryIdentifier
	if name == "" {
		return nil, fmt.Errorf("component type '%s' has no primary identifier", c.definition.name)
	}

	a, err := c.Attribute(name)
	if err != nil {
		return nil, err
	}

	return a.Value()
}

func (c *Component) HasID() bool {
	id, err := c.ID()
	return err == nil && id != nil
}

// RunValidators evaluates the validators of every attribute the selector
// names, prefixing failure paths with the attribute name. Unset attributes
// are skipped.
func (c *Component) RunValidators(s selectors.Selector) ([]valuetypes.Failure, error) {
	failures := []valuetypes.Failure{}

	for _, t := range c.definition.templates {
		sub := selectors.Get(s, t.name)
		if sub == selectors.None {
			continue
		}

		a, err := c.Attribute(t.name)
		if err != nil {
			return nil, err
		}

		attrFailures, err := a.RunValidators(sub)
		if err != nil {
			return nil, err
		}

		failures = append(failures, valuetypes.PrefixFailures(attrFailures, t.name)...)
	}

	return failures, nil
}

func (c *Component) Validate(s selectors.Selector) error {
	failures, err := c.RunValidators(s)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		return valuetypes.NewValidationError(failures)
	}
	return nil
}

func (c *Component) IsValid(s selectors.Selector) bool {
	return c.Validate(s) == nil
}

// ResolveOperationSetting resolves role based exposure settings through the
// definition's operation resolver. Types without a resolver deny role based
// operations.
func (c *Component) ResolveOperationSetting(ctx context.Context, setting properties.ExposureSetting) (bool, error) {
	if allowed, isBool := setting.Bool(); isBool {
		return allowed, nil
	}

	if c.definition.resolver == nil {
		return false, nil
	}

	return c.definition.resolver(ctx, setting)
}

// OperationAllowed resolves the exposure of the named attribute for the given
// operation.
func (c *Component) OperationAllowed(ctx context.Context, name string, op properties.Operation) (bool, error) {
	a, err := c.Attribute(name)
	if err != nil {
		return false, err
	}

	return a.OperationAllowed(ctx, op)
}

// AttachIdentityMap connects the instance to an identity map. An already
// assigned identifier is registered immediately.
func (c *Component) AttachIdentityMap(m *identity.Map) error {
	c.identityMap = m

	if m == nil {
		return nil
	}

	if id, assigned := c.currentID(); assigned {
		return m.Register(id, c)
	}

	return nil
}

// RegisterInstance is called by the primary identifier attribute when an
// identifier is assigned. Instances without an identity map skip
// registration.
func (c *Component) RegisterInstance(id any) error {
	if c.identityMap == nil {
		return nil
	}
	return c.identityMap.Register(id, c)
}

func (c *Component) UnregisterInstance(id any) {
	if c.identityMap != nil {
		c.identityMap.Unregister(id)
	}
}

// Release removes the instance from its identity map, freeing the identifier
// for future instances.
func (c *Component) Release() {
	if id, assigned := c.currentID(); assigned {
		c.UnregisterInstance(id)
	}
}

func (c *Component) currentID() (any, bool) {
	name := c.definition.primaryIdentifier
	if name == "" {
		return nil, false
	}

	a, exists := c.attrs[name]
	if !exists && c.template != nil {
		value, isSet, err := c.template.AttributeValue(name)
		if err != nil || !isSet {
			return nil, false
		}
		return value, true
	}

	if !exists || !a.IsSet() {
		return nil, false
	}

	value, err := a.Value()
	if err != nil {
		return nil, false
	}

	return value, true
}

// Fork returns a draft overlay of the instance. The fork shares the original
// as its template and materializes attributes on first touch; the original is
// never mutated through the fork. Forks are not connected to an identity map.
func (c *Component) Fork() *Component {
	return &Component{
		definition: c.definition,
		template:   c,
		attrs:      map[string]*attributes.Attribute{},
		isNew:      c.isNew,
	}
}

func (c *Component) Observe(o observable.Observer) {
	c.observers.Add(o)
}

func (c *Component) Unobserve(o observable.Observer) {
	c.observers.Remove(o)
}

// Notify propagates attribute level changes to instance level observers.
func (c *Component) Notify() {
	c.observers.Call()
}

var _ selectors.ValueSource = (*Component)(nil)
var _ valuetypes.Component = (*Component)(nil)
var _ properties.Owner = (*Component)(nil)
var _ attributes.IdentityRegistrar = (*Component)(nil)
var _ observable.Observable = (*Component)(nil)
var _ observable.Observer = (*Component)(nil)
var _ identity.Instance = (*Component)(nil)
