package attributes

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

// NewPrimaryIdentifier returns the attribute that carries a component's
// identity. Primary identifiers cannot be reassigned to a different value;
// they register their owner in the identity map on assignment and remove the
// mapping again on unset. String identifiers without an explicit default
// generate a uuid per instance.
func NewPrimaryIdentifier(name string, valueType valuetypes.ValueType, owner properties.Owner, decorators ...AttributeDecoratorFunc) (*Attribute, error) {
	if valueType == nil {
		valueType = valuetypes.String()
	}

	a, err := newIdentifier(name, valueType, owner, rolePrimary, decorators)
	if err != nil {
		return nil, err
	}

	if a.defaultValue == nil && valuetypes.IsString(valueType) {
		a.defaultValue = func(properties.Owner) any { return uuid.NewString() }
	}

	return a, nil
}

// NewSecondaryIdentifier returns an attribute that serves as an alternative
// lookup key. Secondary identifiers stay mutable and are not registered in
// the identity map.
func NewSecondaryIdentifier(name string, valueType valuetypes.ValueType, owner properties.Owner, decorators ...AttributeDecoratorFunc) (*Attribute, error) {
	if valueType == nil {
		valueType = valuetypes.String()
	}

	return newIdentifier(name, valueType, owner, roleSecondary, decorators)
}

func newIdentifier(name string, valueType valuetypes.ValueType, owner properties.Owner, role identifierRole, decorators []AttributeDecoratorFunc) (*Attribute, error) {
	if !valuetypes.IsIdentifierType(valueType) {
		return nil, errors.NewTypeMismatchError(
			fmt.Sprintf("identifier '%s' must be a non optional string or number, not '%s'", name, valueType.String()),
		)
	}

	a := New(name, valueType, owner, decorators...)

	if a.getter != nil || a.setter != nil {
		return nil, fmt.Errorf("identifier '%s' cannot use accessor strategies", name)
	}

	a.role = role

	return a, nil
}
