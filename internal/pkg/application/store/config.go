package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/validators"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

type ExposeConfig struct {
	Operation string   `yaml:"operation"`
	Allow     bool     `yaml:"allow"`
	Roles     []string `yaml:"roles"`
}

type AttributeConfig struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Optional   bool           `yaml:"optional"`
	Identifier string         `yaml:"identifier"`
	Controlled bool           `yaml:"controlled"`
	Validators []string       `yaml:"validators"`
	Expose     []ExposeConfig `yaml:"expose"`
}

type ComponentConfig struct {
	Name       string            `yaml:"name"`
	Attributes []AttributeConfig `yaml:"attributes"`
}

type Tenant struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Config struct {
	Tenants    []Tenant          `yaml:"tenants"`
	Components []ComponentConfig `yaml:"components"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)

	return cfg, err
}

// BuildRegistry turns the configured component types into definitions and
// registers them. Role based exposure settings resolve against the caller
// roles stored in the request context by the authorization layer.
func BuildRegistry(cfg *Config) (*components.Registry, error) {
	registry := components.NewRegistry()

	for _, component := range cfg.Components {
		definition, err := buildDefinition(component)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration for component type '%s': %w", component.Name, err)
		}

		if err := registry.Register(definition); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func buildDefinition(cfg ComponentConfig) (*components.Definition, error) {
	decorators := []components.DefinitionDecoratorFunc{
		components.WithOperationResolver(resolveWithCallerRoles),
	}

	for _, attribute := range cfg.Attributes {
		valueType, err := parseValueType(attribute)
		if err != nil {
			return nil, err
		}

		attrDecorators, err := attributeDecorators(attribute)
		if err != nil {
			return nil, err
		}

		switch attribute.Identifier {
		case "primary":
			decorators = append(decorators, components.PrimaryIdentifier(attribute.Name, valueType, attrDecorators...))
		case "secondary":
			decorators = append(decorators, components.SecondaryIdentifier(attribute.Name, valueType, attrDecorators...))
		case "":
			decorators = append(decorators, components.Attribute(attribute.Name, valueType, attrDecorators...))
		default:
			return nil, fmt.Errorf("unknown identifier role '%s' on attribute '%s'", attribute.Identifier, attribute.Name)
		}
	}

	return components.NewDefinition(cfg.Name, decorators...)
}

func parseValueType(cfg AttributeConfig) (valuetypes.ValueType, error) {
	opts := []valuetypes.TypeOption{}

	if cfg.Optional {
		opts = append(opts, valuetypes.Optional())
	}

	namedValidators := make([]valuetypes.Validator, 0, len(cfg.Validators))
	for _, name := range cfg.Validators {
		v, err := validatorByName(name)
		if err != nil {
			return nil, err
		}
		namedValidators = append(namedValidators, v)
	}
	if len(namedValidators) > 0 {
		opts = append(opts, valuetypes.WithValidators(namedValidators...))
	}

	return valueTypeByName(cfg.Type, opts)
}

func valueTypeByName(name string, opts []valuetypes.TypeOption) (valuetypes.ValueType, error) {
	if element, isArray := strings.CutPrefix(name, "["); isArray {
		element, closed := strings.CutSuffix(element, "]")
		if !closed {
			return nil, fmt.Errorf("malformed array type '%s'", name)
		}
		elementType, err := valueTypeByName(element, nil)
		if err != nil {
			return nil, err
		}
		return valuetypes.ArrayOf(elementType, opts...), nil
	}

	switch name {
	case "boolean":
		return valuetypes.Boolean(opts...), nil
	case "number":
		return valuetypes.Number(opts...), nil
	case "string":
		return valuetypes.String(opts...), nil
	case "date":
		return valuetypes.Date(opts...), nil
	case "regExp":
		return valuetypes.RegExp(opts...), nil
	case "object":
		return valuetypes.Object(opts...), nil
	case "":
		return nil, fmt.Errorf("attributes require a type")
	default:
		// anything else references another component type
		return valuetypes.ComponentRef(name, opts...), nil
	}
}

func validatorByName(name string) (valuetypes.Validator, error) {
	switch name {
	case "notEmpty":
		return validators.NotEmpty(), nil
	case "email":
		return validators.Email(), nil
	case "url":
		return validators.URL(), nil
	case "positive":
		return validators.Positive(), nil
	default:
		return valuetypes.Validator{}, fmt.Errorf("unknown validator '%s'", name)
	}
}

func attributeDecorators(cfg AttributeConfig) ([]attributes.AttributeDecoratorFunc, error) {
	decorators := []attributes.AttributeDecoratorFunc{}

	if cfg.Controlled {
		decorators = append(decorators, attributes.Controlled())
	}

	if len(cfg.Expose) == 0 {
		// attributes without explicit exposure are fully accessible
		decorators = append(decorators,
			attributes.Exposed(properties.OperationGet, properties.BoolSetting(true)),
			attributes.Exposed(properties.OperationSet, properties.BoolSetting(true)),
		)
		return decorators, nil
	}

	for _, expose := range cfg.Expose {
		op := properties.Operation(expose.Operation)
		if op != properties.OperationGet && op != properties.OperationSet && op != properties.OperationCall {
			return nil, fmt.Errorf("unknown operation '%s' on attribute '%s'", expose.Operation, cfg.Name)
		}

		setting := properties.BoolSetting(expose.Allow)
		if len(expose.Roles) > 0 {
			setting = properties.RolesSetting(expose.Roles...)
		}

		decorators = append(decorators, attributes.Exposed(op, setting))
	}

	return decorators, nil
}

type callerRolesContextKey struct {
	name string
}

var callerRolesCtxKey = &callerRolesContextKey{"caller-roles"}

// WithCallerRoles stores the roles of the current caller in the context.
func WithCallerRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, callerRolesCtxKey, roles)
}

// CallerRoles extracts the roles of the current caller, if any, from the
// provided context.
func CallerRoles(ctx context.Context) []string {
	roles, ok := ctx.Value(callerRolesCtxKey).([]string)
	if !ok {
		return nil
	}
	return roles
}

func resolveWithCallerRoles(ctx context.Context, setting properties.ExposureSetting) (bool, error) {
	required, isRoles := setting.Roles()
	if !isRoles {
		allowed, _ := setting.Bool()
		return allowed, nil
	}

	for _, role := range CallerRoles(ctx) {
		for _, requiredRole := range required {
			if role == requiredRole {
				return true, nil
			}
		}
	}

	return false, nil
}
