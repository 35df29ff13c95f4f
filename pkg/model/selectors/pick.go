package selectors

import (
	"fmt"

	"github.com/diwise/component-model/pkg/model/errors"
)

// ValueSource is implemented by entity like values that expose the current
// value of named attributes. Picking and traversal fetch attribute values
// through this interface rather than reading raw storage.
type ValueSource interface {
	AttributeValue(name string) (value any, isSet bool, err error)
}

type pickConfig struct {
	alwaysInclude []string
}

type PickOption func(*pickConfig)

// AlwaysInclude names keys of plain objects that are copied to the result even
// when the selector does not mention them, such as type discriminators.
func AlwaysInclude(names ...string) PickOption {
	return func(cfg *pickConfig) {
		cfg.alwaysInclude = append(cfg.alwaysInclude, names...)
	}
}

// PickFromValue walks value as described by the selector and returns the
// selected parts. A selector of true returns the value as it is, arrays are
// mapped element-wise, entity like values have each selected attribute's
// current value fetched recursively and plain objects have their own
// properties fetched. Picking with an empty selector is an error; callers
// must special-case "give me nothing".
func PickFromValue(value any, s Selector, opts ...PickOption) (any, error) {
	cfg := &pickConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s = norm(s)
	if isNone(s) {
		return nil, errors.NewEmptySelectorError("cannot pick attributes using an empty selector")
	}

	return pick(value, s, cfg)
}

func pick(value any, s Selector, cfg *pickConfig) (any, error) {
	if s == All {
		return value, nil
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case ValueSource:
		result := map[string]any{}
		for name, sub := range Iterate(s) {
			attributeValue, isSet, err := v.AttributeValue(name)
			if err != nil {
				return nil, err
			}
			if !isSet {
				continue
			}
			picked, err := pick(attributeValue, sub, cfg)
			if err != nil {
				return nil, err
			}
			result[name] = picked
		}
		return result, nil
	case []any:
		result := make([]any, 0, len(v))
		for _, element := range v {
			picked, err := pick(element, s, cfg)
			if err != nil {
				return nil, err
			}
			result = append(result, picked)
		}
		return result, nil
	case map[string]any:
		result := map[string]any{}
		for _, name := range cfg.alwaysInclude {
			if property, exists := v[name]; exists {
				result[name] = property
			}
		}
		for name, sub := range Iterate(s) {
			property, exists := v[name]
			if !exists {
				continue
			}
			picked, err := pick(property, sub, cfg)
			if err != nil {
				return nil, err
			}
			result[name] = picked
		}
		return result, nil
	default:
		return nil, errors.NewPickFromScalarError(
			fmt.Sprintf("cannot pick attributes from a value of type %T", value),
		)
	}
}
