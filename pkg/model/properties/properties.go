// Package properties implements the named, exposable members of a component
// type. A property is identified by its name and its owner and optionally
// carries exposure metadata describing which operations remote callers may
// perform on it.
package properties

import (
	"context"
	"fmt"
)

// Operation names the ways a property can be used by a caller.
type Operation string

const (
	OperationGet  Operation = "get"
	OperationSet  Operation = "set"
	OperationCall Operation = "call"
)

type settingKind int

const (
	settingBool settingKind = iota
	settingRoles
)

// ExposureSetting is a tagged variant: either a plain boolean or one or more
// role tokens that the owner resolves to a boolean later.
type ExposureSetting struct {
	kind    settingKind
	allowed bool
	roles   []string
}

// BoolSetting allows or denies an operation unconditionally.
func BoolSetting(allowed bool) ExposureSetting {
	return ExposureSetting{kind: settingBool, allowed: allowed}
}

// RoleSetting allows an operation for callers holding the given role.
func RoleSetting(role string) ExposureSetting {
	return ExposureSetting{kind: settingRoles, roles: []string{role}}
}

// RolesSetting allows an operation for callers holding any of the given roles.
func RolesSetting(roles ...string) ExposureSetting {
	normalized := make([]string, len(roles))
	copy(normalized, roles)
	return ExposureSetting{kind: settingRoles, roles: normalized}
}

// Bool returns the boolean value of the setting and whether the setting is a
// boolean variant at all.
func (s ExposureSetting) Bool() (bool, bool) {
	return s.allowed, s.kind == settingBool
}

// Roles returns the role tokens of the setting and whether the setting is a
// role variant at all.
func (s ExposureSetting) Roles() ([]string, bool) {
	if s.kind != settingRoles {
		return nil, false
	}
	roles := make([]string, len(s.roles))
	copy(roles, s.roles)
	return roles, true
}

func (s ExposureSetting) String() string {
	if s.kind == settingBool {
		return fmt.Sprintf("%t", s.allowed)
	}
	return fmt.Sprintf("%v", s.roles)
}

// Exposure maps operations to their permission settings.
type Exposure map[Operation]ExposureSetting

// Owner is the narrow contract a property requires from its parent: component
// types and component instances both satisfy it.
type Owner interface {
	ComponentName() string
	ResolveOperationSetting(ctx context.Context, setting ExposureSetting) (bool, error)
}

// Property is a named, exposable member of a component. Every property has
// exactly one owner; forking produces a new property bound to a different
// owner with no shared mutable state.
type Property struct {
	name     string
	owner    Owner
	exposure Exposure
}

type PropertyDecoratorFunc func(p *Property)

func Exposed(op Operation, setting ExposureSetting) PropertyDecoratorFunc {
	return func(p *Property) {
		p.Expose(op, setting)
	}
}

func New(name string, owner Owner, decorators ...PropertyDecoratorFunc) Property {
	p := Property{name: name, owner: owner}
	for _, decorator := range decorators {
		decorator(&p)
	}
	return p
}

func (p *Property) Name() string {
	return p.name
}

func (p *Property) Owner() Owner {
	return p.owner
}

func (p *Property) Expose(op Operation, setting ExposureSetting) {
	if p.exposure == nil {
		p.exposure = Exposure{}
	}
	p.exposure[op] = setting
}

func (p *Property) Exposure() Exposure {
	exposure := make(Exposure, len(p.exposure))
	for op, setting := range p.exposure {
		exposure[op] = setting
	}
	return exposure
}

// OperationAllowed resolves the exposure setting for the given operation.
// Properties without an exposure entry for the operation are not remotely
// accessible. Boolean settings resolve directly; role settings are delegated
// to the owner.
func (p *Property) OperationAllowed(ctx context.Context, op Operation) (bool, error) {
	setting, exposed := p.exposure[op]
	if !exposed {
		return false, nil
	}

	if allowed, isBool := setting.Bool(); isBool {
		return allowed, nil
	}

	if p.owner == nil {
		return false, nil
	}

	return p.owner.ResolveOperationSetting(ctx, setting)
}

// Fork returns a copy of the property bound to a new owner. The exposure map
// is copied so the fork shares no mutable state with the original.
func (p *Property) Fork(newOwner Owner) Property {
	forked := Property{name: p.name, owner: newOwner}
	if p.exposure != nil {
		forked.exposure = p.Exposure()
	}
	return forked
}
