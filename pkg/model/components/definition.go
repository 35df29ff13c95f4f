// Package components ties the model together: a definition describes a
// component type as an ordered set of attribute templates, and instances are
// created from definitions, forked into drafts and validated as a whole.
package components

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

// OperationSettingResolver decides whether a role based exposure setting
// allows an operation for the current caller.
type OperationSettingResolver func(ctx context.Context, setting properties.ExposureSetting) (bool, error)

type attributeTemplate struct {
	name  string
	build func(owner properties.Owner) (*attributes.Attribute, error)
}

// Definition describes a component type: its name, its attributes in
// declaration order and which attribute carries the identity of an instance.
type Definition struct {
	name              string
	templates         []attributeTemplate
	primaryIdentifier string
	idGenerator       func(owner properties.Owner) any
	resolver          OperationSettingResolver
}

type DefinitionDecoratorFunc func(d *Definition) error

// Attribute declares a regular attribute on the component type.
func Attribute(name string, valueType valuetypes.ValueType, decorators ...attributes.AttributeDecoratorFunc) DefinitionDecoratorFunc {
	return func(d *Definition) error {
		return d.addTemplate(name, func(owner properties.Owner) (*attributes.Attribute, error) {
			return attributes.New(name, valueType, owner, decorators...), nil
		})
	}
}

// PrimaryIdentifier declares the attribute that carries instance identity.
// Passing a nil value type declares a uuid generating string identifier.
func PrimaryIdentifier(name string, valueType valuetypes.ValueType, decorators ...attributes.AttributeDecoratorFunc) DefinitionDecoratorFunc {
	return func(d *Definition) error {
		if d.primaryIdentifier != "" {
			return fmt.Errorf("component '%s' already has a primary identifier '%s'", d.name, d.primaryIdentifier)
		}
		d.primaryIdentifier = name
		return d.addTemplate(name, func(owner properties.Owner) (*attributes.Attribute, error) {
			return attributes.NewPrimaryIdentifier(name, valueType, owner, decorators...)
		})
	}
}

// SecondaryIdentifier declares an alternative lookup key attribute.
func SecondaryIdentifier(name string, valueType valuetypes.ValueType, decorators ...attributes.AttributeDecoratorFunc) DefinitionDecoratorFunc {
	return func(d *Definition) error {
		return d.addTemplate(name, func(owner properties.Owner) (*attributes.Attribute, error) {
			return attributes.NewSecondaryIdentifier(name, valueType, owner, decorators...)
		})
	}
}

// WithIDGenerator overrides the default value generator of the primary
// identifier. The generator receives the instance being built.
func WithIDGenerator(generate func(owner properties.Owner) any) DefinitionDecoratorFunc {
	return func(d *Definition) error {
		d.idGenerator = generate
		return nil
	}
}

// WithOperationResolver installs the resolver consulted for role based
// exposure settings on instances of this type.
func WithOperationResolver(resolver OperationSettingResolver) DefinitionDecoratorFunc {
	return func(d *Definition) error {
		d.resolver = resolver
		return nil
	}
}

func NewDefinition(name string, decorators ...DefinitionDecoratorFunc) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("component definitions require a non empty name")
	}

	d := &Definition{name: name}

	for _, decorator := range decorators {
		if err := decorator(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Definition) addTemplate(name string, build func(owner properties.Owner) (*attributes.Attribute, error)) error {
	for _, t := range d.templates {
		if t.name == name {
			return fmt.Errorf("component '%s' already declares an attribute '%s'", d.name, name)
		}
	}
	d.templates = append(d.templates, attributeTemplate{name: name, build: build})
	return nil
}

func (d *Definition) Name() string {
	return d.name
}

// PrimaryIdentifierName returns the name of the identity carrying attribute,
// or the empty string for anonymous component types.
func (d *Definition) PrimaryIdentifierName() string {
	return d.primaryIdentifier
}

// AttributeNames returns the attribute names in declaration order.
func (d *Definition) AttributeNames() []string {
	names := make([]string, 0, len(d.templates))
	for _, t := range d.templates {
		names = append(names, t.name)
	}
	return names
}

func (d *Definition) hasAttribute(name string) bool {
	for _, t := range d.templates {
		if t.name == name {
			return true
		}
	}
	return false
}

func (d *Definition) buildAttribute(name string, owner properties.Owner) (*attributes.Attribute, error) {
	for _, t := range d.templates {
		if t.name != name {
			continue
		}

		a, err := t.build(owner)
		if err != nil {
			return nil, err
		}

		if name == d.primaryIdentifier && d.idGenerator != nil {
			attributes.DefaultFunc(d.idGenerator)(a)
		}

		return a, nil
	}

	return nil, fmt.Errorf("component '%s' has no attribute '%s'", d.name, name)
}

// Describe returns a multi line introspection string listing the component's
// attributes and their types.
func (d *Definition) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "component %s {\n", d.name)
	for _, t := range d.templates {
		a, err := t.build(nil)
		if err != nil {
			fmt.Fprintf(&b, "  %s: <invalid>\n", t.name)
			continue
		}
		fmt.Fprintf(&b, "  %s\n", a.Describe())
	}
	b.WriteString("}")

	return b.String()
}

// Registry maps component type names to their definitions. Registries are
// safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	definitions map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{definitions: map[string]*Definition{}}
}

func (r *Registry) Register(d *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[d.name]; exists {
		return fmt.Errorf("a component type named '%s' is already registered", d.name)
	}

	r.definitions[d.name] = d
	return nil
}

func (r *Registry) Find(name string) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.definitions[name]
	if !exists {
		return nil, errors.NewUnknownComponentTypeError(
			fmt.Sprintf("no component type named '%s' has been registered", name),
		)
	}

	return d, nil
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
