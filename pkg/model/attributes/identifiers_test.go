package attributes

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

func TestPrimaryIdentifiersGenerateDefaultIDs(t *testing.T) {
	is := is.New(t)

	id, err := NewPrimaryIdentifier("id", nil, nil)
	is.NoErr(err)
	is.True(id.IsPrimaryIdentifier())
	is.True(id.HasDefault())

	is.NoErr(id.EvaluateDefault())

	value, err := id.Value()
	is.NoErr(err)

	generated, isString := value.(string)
	is.True(isString)
	is.True(generated != "")

	other, err := NewPrimaryIdentifier("id", nil, nil)
	is.NoErr(err)
	is.NoErr(other.EvaluateDefault())

	otherValue, err := other.Value()
	is.NoErr(err)
	is.True(otherValue != value)
}

func TestPrimaryIdentifiersAreImmutableOnceAssigned(t *testing.T) {
	is := is.New(t)

	id, err := NewPrimaryIdentifier("id", nil, nil)
	is.NoErr(err)

	_, err = id.SetValue("movie-1", SourceStore)
	is.NoErr(err)

	// assigning the same value again is a harmless no-op
	_, err = id.SetValue("movie-1", SourceStore)
	is.NoErr(err)

	_, err = id.SetValue("movie-2", SourceStore)
	is.True(stderrors.Is(err, errors.ErrImmutableIdentifier))

	value, err := id.Value()
	is.NoErr(err)
	is.Equal(value, "movie-1")
}

func TestUnsettingPrimaryIdentifiersRemovesTheMapping(t *testing.T) {
	is := is.New(t)

	owner := &registeringOwner{known: map[any]bool{}}

	id, err := NewPrimaryIdentifier("id", nil, owner)
	is.NoErr(err)

	_, err = id.SetValue("movie-1", SourceStore)
	is.NoErr(err)
	is.True(owner.known["movie-1"])

	is.NoErr(id.UnsetValue())
	is.True(!id.IsSet())
	is.True(!owner.known["movie-1"])

	// a fresh assignment registers again
	_, err = id.SetValue("movie-2", SourceStore)
	is.NoErr(err)
	is.True(owner.known["movie-2"])
}

func TestPrimaryIdentifiersRegisterTheirOwner(t *testing.T) {
	is := is.New(t)

	owner := &registeringOwner{known: map[any]bool{}}

	id, err := NewPrimaryIdentifier("id", nil, owner)
	is.NoErr(err)

	_, err = id.SetValue("movie-1", SourceStore)
	is.NoErr(err)
	is.True(owner.known["movie-1"])

	conflicting, err := NewPrimaryIdentifier("id", nil, owner)
	is.NoErr(err)

	_, err = conflicting.SetValue("movie-1", SourceStore)
	is.True(stderrors.Is(err, errors.ErrDuplicateIdentifier))
	is.True(!conflicting.IsSet())
}

func TestSecondaryIdentifiersStayMutable(t *testing.T) {
	is := is.New(t)

	imdb, err := NewSecondaryIdentifier("imdbID", valuetypes.String(), nil)
	is.NoErr(err)
	is.True(imdb.IsIdentifier())
	is.True(!imdb.IsPrimaryIdentifier())
	is.True(!imdb.HasDefault())

	_, err = imdb.SetValue("tt1375666", SourceStore)
	is.NoErr(err)

	_, err = imdb.SetValue("tt6723592", SourceStore)
	is.NoErr(err)
}

func TestIdentifiersRequireIdentifierTypes(t *testing.T) {
	is := is.New(t)

	_, err := NewPrimaryIdentifier("id", valuetypes.Boolean(), nil)
	is.True(stderrors.Is(err, errors.ErrTypeMismatch))

	_, err = NewPrimaryIdentifier("id", valuetypes.String(valuetypes.Optional()), nil)
	is.True(stderrors.Is(err, errors.ErrTypeMismatch))

	_, err = NewSecondaryIdentifier("code", valuetypes.Number(), nil)
	is.NoErr(err)

	_, err = NewPrimaryIdentifier("id", nil, nil, WithSetter(func(properties.Owner, any) error {
		return nil
	}))
	is.True(err != nil)
}

type registeringOwner struct {
	known map[any]bool
}

func (o *registeringOwner) ComponentName() string { return "Movie" }

func (o *registeringOwner) ResolveOperationSetting(context.Context, properties.ExposureSetting) (bool, error) {
	return false, nil
}

func (o *registeringOwner) RegisterInstance(id any) error {
	if o.known[id] {
		return errors.NewDuplicateIdentifierError("an instance with this id already exists")
	}
	o.known[id] = true
	return nil
}

func (o *registeringOwner) UnregisterInstance(id any) {
	delete(o.known, id)
}
