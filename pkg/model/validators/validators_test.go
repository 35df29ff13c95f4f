package validators

import (
	stderrors "errors"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/selectors"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

func TestNotEmpty(t *testing.T) {
	is := is.New(t)

	v := NotEmpty()
	is.True(v.Fn("Inception"))
	is.True(!v.Fn(""))
}

func TestLengthBounds(t *testing.T) {
	is := is.New(t)

	is.True(MinLength(3).Fn("abc"))
	is.True(!MinLength(3).Fn("ab"))

	is.True(MaxLength(3).Fn("abc"))
	is.True(!MaxLength(3).Fn("abcd"))
}

func TestEmailAndURL(t *testing.T) {
	is := is.New(t)

	is.True(Email().Fn("someone@diwise.io"))
	is.True(!Email().Fn("not an address"))

	is.True(URL().Fn("https://diwise.io/movies"))
	is.True(!URL().Fn("::not a url::"))
}

func TestNumericBounds(t *testing.T) {
	is := is.New(t)

	is.True(Positive().Fn(4.5))
	is.True(!Positive().Fn(0.0))
	is.True(!Positive().Fn(-1.0))

	rating := Range(0, 5)
	is.True(rating.Fn(4.5))
	is.True(!rating.Fn(5.5))
}

func TestValidatorsComposeWithValueTypes(t *testing.T) {
	is := is.New(t)

	a := attributes.New("rating", valuetypes.Number(valuetypes.WithValidators(Range(0, 5))), nil)

	_, err := a.SetValue(7.2, attributes.SourceLocal)
	is.NoErr(err)

	err = a.Validate(selectors.All)
	is.True(stderrors.Is(err, errors.ErrValidationFailed))

	var validationErr *valuetypes.ValidationError
	is.True(stderrors.As(err, &validationErr))
	is.Equal(validationErr.Failures()[0].Validator.Name, "range(0, 5)")
}
