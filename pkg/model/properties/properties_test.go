package properties

import (
	"context"
	"testing"

	"github.com/matryer/is"
)

func TestBooleanSettingsResolveDirectly(t *testing.T) {
	is := is.New(t)

	p := New("title", nil, Exposed(OperationGet, BoolSetting(true)))

	allowed, err := p.OperationAllowed(context.Background(), OperationGet)
	is.NoErr(err)
	is.True(allowed)
}

func TestUnexposedOperationsAreDenied(t *testing.T) {
	is := is.New(t)

	p := New("title", nil, Exposed(OperationGet, BoolSetting(true)))

	allowed, err := p.OperationAllowed(context.Background(), OperationSet)
	is.NoErr(err)
	is.True(!allowed)
}

func TestRoleSettingsAreResolvedByTheOwner(t *testing.T) {
	is := is.New(t)

	owner := &fakeOwner{allowedRole: "admin"}
	p := New("title", owner, Exposed(OperationSet, RoleSetting("admin")))

	allowed, err := p.OperationAllowed(context.Background(), OperationSet)
	is.NoErr(err)
	is.True(allowed)

	denied := New("title", owner, Exposed(OperationSet, RoleSetting("guest")))

	allowed, err = denied.OperationAllowed(context.Background(), OperationSet)
	is.NoErr(err)
	is.True(!allowed)
}

func TestForkedPropertiesShareNoMutableState(t *testing.T) {
	is := is.New(t)

	original := New("title", nil, Exposed(OperationGet, BoolSetting(true)))

	newOwner := &fakeOwner{}
	forked := original.Fork(newOwner)
	forked.Expose(OperationSet, BoolSetting(true))

	is.Equal(forked.Owner(), Owner(newOwner))
	is.Equal(forked.Name(), "title")

	_, exposedOnOriginal := original.Exposure()[OperationSet]
	is.True(!exposedOnOriginal)
}

func TestExposureSettingVariants(t *testing.T) {
	is := is.New(t)

	allowed, isBool := BoolSetting(true).Bool()
	is.True(isBool)
	is.True(allowed)

	_, isBool = RoleSetting("admin").Bool()
	is.True(!isBool)

	roles, isRoles := RolesSetting("admin", "editor").Roles()
	is.True(isRoles)
	is.Equal(roles, []string{"admin", "editor"})
}

type fakeOwner struct {
	allowedRole string
}

func (f *fakeOwner) ComponentName() string { return "Fake" }

func (f *fakeOwner) ResolveOperationSetting(_ context.Context, setting ExposureSetting) (bool, error) {
	roles, ok := setting.Roles()
	if !ok {
		allowed, _ := setting.Bool()
		return allowed, nil
	}
	for _, role := range roles {
		if role == f.allowedRole {
			return true, nil
		}
	}
	return false, nil
}
