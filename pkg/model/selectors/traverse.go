package selectors

import (
	"fmt"

	"github.com/diwise/component-model/pkg/model/errors"
)

// Visit carries the position of the visited value within its container.
type Visit struct {
	Name      string
	Container any
	IsArray   bool
}

type VisitorFunc func(value any, s Selector, visit Visit) error

type TraverseOptions struct {
	// IncludeSubtrees invokes the visitor at every container boundary before
	// descending into it.
	IncludeSubtrees bool
	// IncludeLeafs invokes the visitor at leaves, where the selector resolves
	// to true or the value is undefined.
	IncludeLeafs bool
}

// Traverse walks value depth first, mirroring the structure PickFromValue
// uses. Attributes that are unset on entity like values are skipped, since
// there is no value to traverse.
func Traverse(value any, s Selector, visitor VisitorFunc, opts TraverseOptions) error {
	return traverse(value, norm(s), visitor, opts, Visit{})
}

func traverse(value any, s Selector, visitor VisitorFunc, opts TraverseOptions, visit Visit) error {
	if isNone(s) {
		return nil
	}

	if s == All || value == nil {
		if opts.IncludeLeafs {
			return visitor(value, s, visit)
		}
		return nil
	}

	if opts.IncludeSubtrees {
		if err := visitor(value, s, visit); err != nil {
			return err
		}
	}

	switch v := value.(type) {
	case ValueSource:
		for name, sub := range Iterate(s) {
			attributeValue, isSet, err := v.AttributeValue(name)
			if err != nil {
				return err
			}
			if !isSet {
				continue
			}
			err = traverse(attributeValue, sub, visitor, opts, Visit{Name: name, Container: value})
			if err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, element := range v {
			err := traverse(element, s, visitor, opts, Visit{Name: visit.Name, Container: value, IsArray: true})
			if err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for name, sub := range Iterate(s) {
			property, exists := v[name]
			if !exists {
				continue
			}
			err := traverse(property, sub, visitor, opts, Visit{Name: name, Container: value})
			if err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.NewPickFromScalarError(
			fmt.Sprintf("cannot traverse into a value of type %T", value),
		)
	}
}
