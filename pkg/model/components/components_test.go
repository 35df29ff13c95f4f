package components

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/identity"
	"github.com/diwise/component-model/pkg/model/observable"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/selectors"
	"github.com/diwise/component-model/pkg/model/valuetypes"
)

func TestDefinitionsRejectDuplicateAttributes(t *testing.T) {
	is := is.New(t)

	_, err := NewDefinition("Movie",
		Attribute("title", valuetypes.String()),
		Attribute("title", valuetypes.String()),
	)
	is.True(err != nil)

	_, err = NewDefinition("Movie",
		PrimaryIdentifier("id", nil),
		PrimaryIdentifier("otherID", nil),
	)
	is.True(err != nil)
}

func TestNewInstancesGetGeneratedIdentifiersAndDefaults(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	movie, err := movies.New(V("title", "Inception"))
	is.NoErr(err)
	is.True(movie.IsNew())
	is.True(movie.HasID())

	genre, isSet, err := movie.AttributeValue("genre")
	is.NoErr(err)
	is.True(isSet)
	is.Equal(genre, "unknown")

	id, err := movie.ID()
	is.NoErr(err)
	is.True(id.(string) != "")
}

func TestInstantiateSkipsDefaults(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	movie, err := movies.Instantiate()
	is.NoErr(err)
	is.True(!movie.IsNew())
	is.True(!movie.HasID())

	_, isSet, err := movie.AttributeValue("genre")
	is.NoErr(err)
	is.True(!isSet)
}

func TestUnknownAttributesAreRejected(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	_, err := movies.New(V("runtime", 148))
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "no attribute 'runtime'"))
}

func TestComponentsServeAsPickSources(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	movie, err := movies.New(V("title", "Inception"), V("year", 2010))
	is.NoErr(err)

	picked, err := selectors.PickFromValue(movie, selectors.Map{
		"title": selectors.All,
		"year":  selectors.All,
	})
	is.NoErr(err)
	is.Equal(picked, map[string]any{"title": "Inception", "year": 2010.0})
}

func TestValidationPrefixesAttributeNames(t *testing.T) {
	is := is.New(t)

	notEmpty := valuetypes.NewValidator("notEmpty", "cannot be empty", func(v any) bool {
		s, _ := v.(string)
		return s != ""
	})

	movies, err := NewDefinition("Movie",
		PrimaryIdentifier("id", nil),
		Attribute("title", valuetypes.String(valuetypes.WithValidators(notEmpty))),
	)
	is.NoErr(err)

	movie, err := movies.New(V("title", ""))
	is.NoErr(err)

	failures, err := movie.RunValidators(selectors.All)
	is.NoErr(err)
	is.Equal(len(failures), 1)
	is.Equal(failures[0].Path, "title")

	err = movie.Validate(selectors.All)
	is.True(stderrors.Is(err, errors.ErrValidationFailed))

	// narrowing the selector to other attributes skips the failure
	is.True(movie.IsValid(selectors.Map{"year": selectors.All}))
}

func TestIdentityMapsRejectDuplicateInstances(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)
	registry := identity.NewRegistry()

	first, err := movies.Instantiate()
	is.NoErr(err)
	is.NoErr(first.AttachIdentityMap(registry.ForComponent(movies.Name())))

	_, err = first.SetAttributeValue("id", "movie-1", attributes.SourceStore)
	is.NoErr(err)

	found, exists := registry.Lookup("Movie", "movie-1")
	is.True(exists)
	is.Equal(found, identity.Instance(first))

	second, err := movies.Instantiate()
	is.NoErr(err)
	is.NoErr(second.AttachIdentityMap(registry.ForComponent(movies.Name())))

	_, err = second.SetAttributeValue("id", "movie-1", attributes.SourceStore)
	is.True(stderrors.Is(err, errors.ErrDuplicateIdentifier))
}

func TestAttachingAnIdentityMapRegistersAssignedIdentifiers(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)
	m := identity.NewMap()

	movie, err := movies.New()
	is.NoErr(err)
	is.NoErr(movie.AttachIdentityMap(m))
	is.Equal(m.Len(), 1)

	movie.Release()
	is.Equal(m.Len(), 0)
}

func TestForksOverlayTheirTemplate(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	movie, err := movies.New(V("title", "Inception"), V("year", 2010))
	is.NoErr(err)

	draft := movie.Fork()

	// untouched attributes read through to the template
	title, isSet, err := draft.AttributeValue("title")
	is.NoErr(err)
	is.True(isSet)
	is.Equal(title, "Inception")

	// writes stay in the overlay
	_, err = draft.SetAttributeValue("year", 2011, attributes.SourceLocal)
	is.NoErr(err)

	year, _, err := draft.AttributeValue("year")
	is.NoErr(err)
	is.Equal(year, 2011.0)

	year, _, err = movie.AttributeValue("year")
	is.NoErr(err)
	is.Equal(year, 2010.0)
}

func TestForksKeepTheTemplateIdentifier(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	movie, err := movies.New()
	is.NoErr(err)

	id, err := movie.ID()
	is.NoErr(err)

	forkedID, err := movie.Fork().ID()
	is.NoErr(err)
	is.Equal(forkedID, id)
}

func TestAttributeChangesNotifyInstanceObservers(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	movie, err := movies.New()
	is.NoErr(err)

	notifications := 0
	movie.Observe(observable.Func(func() { notifications++ }))

	_, err = movie.SetAttributeValue("title", "Inception", attributes.SourceLocal)
	is.NoErr(err)
	is.Equal(notifications, 1)

	_, err = movie.SetAttributeValue("title", "Inception", attributes.SourceLocal)
	is.NoErr(err)
	is.Equal(notifications, 1)
}

func TestRoleBasedExposureUsesTheDefinitionResolver(t *testing.T) {
	is := is.New(t)

	movies, err := NewDefinition("Movie",
		PrimaryIdentifier("id", nil),
		Attribute("title", valuetypes.String(),
			attributes.Exposed(properties.OperationSet, properties.RoleSetting("editor")),
		),
		WithOperationResolver(func(_ context.Context, setting properties.ExposureSetting) (bool, error) {
			roles, _ := setting.Roles()
			for _, role := range roles {
				if role == "editor" {
					return true, nil
				}
			}
			return false, nil
		}),
	)
	is.NoErr(err)

	movie, err := movies.New()
	is.NoErr(err)

	allowed, err := movie.OperationAllowed(context.Background(), "title", properties.OperationSet)
	is.NoErr(err)
	is.True(allowed)

	allowed, err = movie.OperationAllowed(context.Background(), "title", properties.OperationGet)
	is.NoErr(err)
	is.True(!allowed)
}

func TestDefinitionRegistry(t *testing.T) {
	is := is.New(t)

	registry := NewRegistry()

	movies := movieDefinition(t)
	is.NoErr(registry.Register(movies))
	is.True(registry.Register(movies) != nil)

	found, err := registry.Find("Movie")
	is.NoErr(err)
	is.Equal(found, movies)

	_, err = registry.Find("Director")
	is.True(stderrors.Is(err, errors.ErrUnknownComponentType))

	is.Equal(registry.Names(), []string{"Movie"})
}

func TestDescribeListsAttributesInDeclarationOrder(t *testing.T) {
	is := is.New(t)

	movies := movieDefinition(t)

	description := movies.Describe()
	is.True(strings.HasPrefix(description, "component Movie {"))
	is.True(strings.Contains(description, "id: string"))
	is.True(strings.Contains(description, "year: number?"))

	is.True(strings.Index(description, "id: string") < strings.Index(description, "title: string"))
}

func movieDefinition(t *testing.T) *Definition {
	t.Helper()

	d, err := NewDefinition("Movie",
		PrimaryIdentifier("id", nil),
		Attribute("title", valuetypes.String(valuetypes.Optional())),
		Attribute("year", valuetypes.Number(valuetypes.Optional())),
		Attribute("genre", valuetypes.String(valuetypes.Optional()), attributes.Default("unknown")),
	)
	if err != nil {
		t.Fatal(err)
	}

	return d
}
