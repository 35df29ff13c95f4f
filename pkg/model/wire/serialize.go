package wire

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/selectors"
)

// Serialize converts an instance into its wire representation. The selector
// decides which attributes travel; a sub selector without detail turns a
// nested instance into a reference carrying only its identifier. The primary
// identifier always travels when it is set, selected or not.
func Serialize(c *components.Component, s selectors.Selector) (map[string]any, error) {
	if s == nil || s == selectors.None {
		return nil, errors.NewEmptySelectorError("cannot serialize with an empty attribute selector")
	}

	e := &encoder{seen: map[*components.Component]bool{}}
	return e.encodeComponent(c, s)
}

// Marshal serializes an instance straight to JSON.
func Marshal(c *components.Component, s selectors.Selector) ([]byte, error) {
	payload, err := Serialize(c, s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

type encoder struct {
	seen map[*components.Component]bool
}

func (e *encoder) encodeComponent(c *components.Component, s selectors.Selector) (map[string]any, error) {
	// break cycles by degrading revisited instances to references
	if e.seen[c] {
		return e.encodeReference(c)
	}
	e.seen[c] = true
	defer delete(e.seen, c)

	if sub, isMap := s.(selectors.Map); isMap && len(sub) == 0 {
		return e.encodeReference(c)
	}

	result := map[string]any{KeyComponent: c.ComponentName()}

	if c.IsNew() {
		result[KeyNew] = true
	}

	idName := c.Definition().PrimaryIdentifierName()

	for _, name := range c.Definition().AttributeNames() {
		sub := selectors.Get(s, name)
		if sub == selectors.None && name != idName {
			continue
		}

		a, err := c.Attribute(name)
		if err != nil {
			return nil, err
		}

		if !a.IsSet() && !a.IsComputed() {
			continue
		}

		value, err := a.Value(attributes.AllowUnset())
		if err != nil {
			return nil, err
		}

		if sub == selectors.None {
			sub = selectors.All
		}

		encoded, err := e.encodeValue(value, sub)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize attribute '%s': %w", name, err)
		}

		result[name] = encoded
	}

	return result, nil
}

func (e *encoder) encodeReference(c *components.Component) (map[string]any, error) {
	idName := c.Definition().PrimaryIdentifierName()
	if idName == "" {
		return nil, fmt.Errorf("component type '%s' has no identifier to reference", c.ComponentName())
	}

	id, err := c.ID()
	if err != nil {
		return nil, fmt.Errorf("cannot reference an instance of '%s' without an identifier: %w", c.ComponentName(), err)
	}

	return map[string]any{
		KeyComponent: c.ComponentName(),
		idName:       id,
	}, nil
}

func (e *encoder) encodeValue(value any, s selectors.Selector) (any, error) {
	switch v := value.(type) {
	case nil:
		return Undefined(), nil
	case *components.Component:
		return e.encodeComponent(v, s)
	case *components.Definition:
		return TypeRefPrefix + v.Name(), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case *regexp.Regexp:
		return v.String(), nil
	case Function:
		return map[string]any{KeyFunction: v.Name}, nil
	case []any:
		encoded := make([]any, 0, len(v))
		for i, element := range v {
			encodedElement, err := e.encodeValue(element, s)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			encoded = append(encoded, encodedElement)
		}
		return encoded, nil
	case map[string]any:
		return e.encodeObject(v, s)
	default:
		return v, nil
	}
}

func (e *encoder) encodeObject(value map[string]any, s selectors.Selector) (any, error) {
	encoded := map[string]any{}

	sub, isMap := s.(selectors.Map)
	if !isMap {
		for name, element := range value {
			encodedElement, err := e.encodeValue(element, selectors.All)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			encoded[name] = encodedElement
		}
		return encoded, nil
	}

	for name, elementSelector := range selectors.Iterate(sub) {
		element, exists := value[name]
		if !exists {
			continue
		}
		encodedElement, err := e.encodeValue(element, elementSelector)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		encoded[name] = encodedElement
	}

	return encoded, nil
}
