package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/identity"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

// ReferenceResolver loads the instance a reference payload points to, for
// example from a backing store.
type ReferenceResolver func(ctx context.Context, componentName string, id any) (*components.Component, error)

type decoder struct {
	registry     *components.Registry
	identities   *identity.Registry
	source       attributes.Source
	expectedType string
	resolve      ReferenceResolver
}

type DeserializeOption func(*decoder)

// WithIdentityRegistry connects deserialization to an identity scope. When a
// payload carries the identifier of a live instance, that instance is patched
// in place instead of duplicated.
func WithIdentityRegistry(r *identity.Registry) DeserializeOption {
	return func(d *decoder) { d.identities = r }
}

// WithSource tags the deserialized values with their origin. The default is
// the server.
func WithSource(source attributes.Source) DeserializeOption {
	return func(d *decoder) { d.source = source }
}

// WithExpectedType rejects payloads of any other component type.
func WithExpectedType(componentName string) DeserializeOption {
	return func(d *decoder) { d.expectedType = componentName }
}

// WithReferenceResolver resolves reference payloads that do not match a live
// instance. Without a resolver such references become sparse instances that
// only carry their identifier.
func WithReferenceResolver(resolve ReferenceResolver) DeserializeOption {
	return func(d *decoder) { d.resolve = resolve }
}

// Deserialize reconstructs a component instance from its wire representation.
// The registry supplies the component type definitions.
func Deserialize(ctx context.Context, payload map[string]any, registry *components.Registry, opts ...DeserializeOption) (*components.Component, error) {
	d := &decoder{registry: registry, source: attributes.SourceServer}
	for _, opt := range opts {
		opt(d)
	}

	return d.decodeComponent(ctx, payload, d.expectedType)
}

// Patch applies a partial payload to an existing instance. Attributes absent
// from the payload are left untouched; attributes carrying the undefined
// marker are unset.
func Patch(ctx context.Context, instance *components.Component, payload map[string]any, registry *components.Registry, opts ...DeserializeOption) error {
	d := &decoder{registry: registry, source: attributes.SourceServer}
	for _, opt := range opts {
		opt(d)
	}

	return d.patch(ctx, instance, payload)
}

// Unmarshal parses a JSON document and reconstructs the instance it carries.
func Unmarshal(ctx context.Context, data []byte, registry *components.Registry, opts ...DeserializeOption) (*components.Component, error) {
	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal component payload: %w", err)
	}

	return Deserialize(ctx, payload, registry, opts...)
}

func (d *decoder) decodeComponent(ctx context.Context, payload map[string]any, expectedType string) (*components.Component, error) {
	name, hasName := payload[KeyComponent].(string)
	if !hasName {
		return nil, fmt.Errorf("component payloads require a '%s' discriminator", KeyComponent)
	}

	if expectedType != "" && name != expectedType {
		return nil, errors.NewComponentTypeMismatchError(
			fmt.Sprintf("expected a component of type '%s', got '%s'", expectedType, name),
		)
	}

	def, err := d.registry.Find(name)
	if err != nil {
		return nil, err
	}

	idName := def.PrimaryIdentifierName()
	idValue := payload[idName]

	if instance, exists := d.lookup(name, idValue); exists {
		return instance, d.patch(ctx, instance, payload)
	}

	if d.resolve != nil && idValue != nil && isReference(payload, idName) {
		resolved, err := d.resolve(ctx, name, idValue)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			return resolved, nil
		}
	}

	instance, err := def.Instantiate()
	if err != nil {
		return nil, err
	}

	if d.identities != nil {
		if err := instance.AttachIdentityMap(d.identities.ForComponent(name)); err != nil {
			return nil, err
		}
	}

	// assign the identifier first, so references back to this instance
	// resolve while the remaining attributes are still being decoded
	if err := d.patch(ctx, instance, payload); err != nil {
		return nil, err
	}

	if isNew, _ := payload[KeyNew].(bool); isNew {
		instance.MarkNew()
	}

	return instance, nil
}

func (d *decoder) lookup(componentName string, id any) (*components.Component, bool) {
	if d.identities == nil || id == nil {
		return nil, false
	}

	found, exists := d.identities.Lookup(componentName, id)
	if !exists {
		return nil, false
	}

	instance, isComponent := found.(*components.Component)
	return instance, isComponent
}

func (d *decoder) patch(ctx context.Context, instance *components.Component, payload map[string]any) error {
	def := instance.Definition()
	decoded := map[string]bool{}

	names := def.AttributeNames()
	if idName := def.PrimaryIdentifierName(); idName != "" {
		// identifier first, see decodeComponent
		ordered := make([]string, 0, len(names))
		ordered = append(ordered, idName)
		for _, name := range names {
			if name != idName {
				ordered = append(ordered, name)
			}
		}
		names = ordered
	}

	for _, name := range names {
		raw, present := payload[name]
		if !present {
			continue
		}

		decoded[name] = true

		a, err := instance.Attribute(name)
		if err != nil {
			return err
		}

		if unsetPayload, isMap := raw.(map[string]any); isMap && isUndefined(unsetPayload) {
			if err := a.UnsetValue(); err != nil {
				return fmt.Errorf("failed to unset attribute '%s': %w", name, err)
			}
			continue
		}

		value, err := d.decodeValue(ctx, raw, a.Type())
		if err != nil {
			return fmt.Errorf("failed to deserialize attribute '%s': %w", name, err)
		}

		if _, err := a.SetValue(value, d.source); err != nil {
			return fmt.Errorf("failed to assign attribute '%s': %w", name, err)
		}
	}

	logger := logging.GetFromContext(ctx)
	for key := range payload {
		if decoded[key] || strings.HasPrefix(key, "__") {
			continue
		}
		logger.Debug("skipping unknown attribute in component payload",
			"component", instance.ComponentName(), "attribute", key)
	}

	return nil
}

func (d *decoder) decodeValue(ctx context.Context, raw any, vt valuetypes.ValueType) (any, error) {
	switch value := raw.(type) {
	case map[string]any:
		if fnName, isFunction := value[KeyFunction].(string); isFunction {
			return Function{Name: fnName}, nil
		}
		if _, isComponent := value[KeyComponent]; isComponent {
			expected, _ := valuetypes.ReferencedComponent(vt)
			return d.decodeComponent(ctx, value, expected)
		}
		return d.decodeObject(ctx, value)
	case []any:
		elementType := vt
		if element, isArray := valuetypes.ElementType(vt); isArray {
			elementType = element
		}
		decoded := make([]any, 0, len(value))
		for i, element := range value {
			decodedElement, err := d.decodeValue(ctx, element, elementType)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			decoded = append(decoded, decodedElement)
		}
		return decoded, nil
	case string:
		return d.decodeString(value, vt)
	default:
		return raw, nil
	}
}

func (d *decoder) decodeObject(ctx context.Context, value map[string]any) (any, error) {
	decoded := make(map[string]any, len(value))
	for name, element := range value {
		decodedElement, err := d.decodeValue(ctx, element, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		decoded[name] = decodedElement
	}
	return decoded, nil
}

func (d *decoder) decodeString(value string, vt valuetypes.ValueType) (any, error) {
	if vt != nil && valuetypes.IsDate(vt) {
		instant, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, errors.NewTypeMismatchError(
				fmt.Sprintf("'%s' is not a valid timestamp", value),
			)
		}
		return instant, nil
	}

	if vt != nil && valuetypes.IsRegExp(vt) {
		pattern, err := regexp.Compile(value)
		if err != nil {
			return nil, errors.NewTypeMismatchError(
				fmt.Sprintf("'%s' is not a valid regular expression", value),
			)
		}
		return pattern, nil
	}

	if typeName, isTypeRef := strings.CutPrefix(value, TypeRefPrefix); isTypeRef && (vt == nil || !valuetypes.IsString(vt)) {
		if def, err := d.registry.Find(typeName); err == nil {
			return def, nil
		}
	}

	return value, nil
}

func isReference(payload map[string]any, idName string) bool {
	for key := range payload {
		if key == idName || strings.HasPrefix(key, "__") {
			continue
		}
		return false
	}
	return true
}
