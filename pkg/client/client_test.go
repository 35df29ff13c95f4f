package client

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"

	"github.com/diwise/component-model/internal/pkg/application/store"
	"github.com/diwise/component-model/internal/pkg/presentation/api/component"
	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/selectors"
)

func TestCreateAndRetrieveComponent(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	created, location, err := c.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-1", "title": "Inception", "year": 2010}`),
	)
	is.NoErr(err)
	is.Equal(location, "/api/components/Movie/movie-1")

	title, isSet, err := created.AttributeValue("title")
	is.NoErr(err)
	is.True(isSet)
	is.Equal(title, "Inception")

	found, err := c.RetrieveComponent(context.Background(), "Movie", "movie-1")
	is.NoErr(err)

	// the identity map guarantees a single live instance per identifier
	is.True(found == created)
}

func TestRetrieveWithAttributeSelection(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	writer := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))
	_, _, err := writer.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-1", "title": "Inception", "year": 2010}`),
	)
	is.NoErr(err)

	reader := NewComponentStoreClient(ts.URL, newRegistry(is), BearerToken("viewer"))

	found, err := reader.RetrieveComponent(context.Background(), "Movie", "movie-1",
		Selected(selectors.Map{"title": selectors.All}),
	)
	is.NoErr(err)

	title, isSet, err := found.AttributeValue("title")
	is.NoErr(err)
	is.True(isSet)
	is.Equal(title, "Inception")

	_, isSet, err = found.AttributeValue("year")
	is.NoErr(err)
	is.True(!isSet)
}

func TestMergeComponentPatchesLocalInstance(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	created, _, err := c.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-1", "title": "Inception", "year": 2010}`),
	)
	is.NoErr(err)

	err = c.MergeComponent(context.Background(), "Movie", "movie-1", []byte(`{"year": 2011}`))
	is.NoErr(err)

	year, isSet, err := created.AttributeValue("year")
	is.NoErr(err)
	is.True(isSet)
	is.Equal(year, 2011.0)
}

func TestMergeComponentPatchesNumericIdentifierInstances(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	created, _, err := c.CreateComponent(context.Background(),
		"Release", []byte(`{"id": 7, "label": "digital"}`),
	)
	is.NoErr(err)

	// the path parameter is a string, but decoded numeric identifiers
	// are tracked under their numeric value
	err = c.MergeComponent(context.Background(), "Release", "7", []byte(`{"label": "theatrical"}`))
	is.NoErr(err)

	label, isSet, err := created.AttributeValue("label")
	is.NoErr(err)
	is.True(isSet)
	is.Equal(label, "theatrical")
}

func TestDeleteComponent(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	_, _, err := c.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-1", "title": "Inception"}`),
	)
	is.NoErr(err)

	err = c.DeleteComponent(context.Background(), "Movie", "movie-1")
	is.NoErr(err)

	_, err = c.RetrieveComponent(context.Background(), "Movie", "movie-1")
	is.True(errors.Is(err, ErrNotFound))
}

func TestQueryComponents(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	_, _, err := c.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-1", "title": "Inception"}`),
	)
	is.NoErr(err)
	_, _, err = c.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-2", "title": "Tenet"}`),
	)
	is.NoErr(err)

	found, err := c.QueryComponents(context.Background(), "Movie")
	is.NoErr(err)
	is.Equal(len(found), 2)
}

func TestCreateDuplicateFailsWithAlreadyExists(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	payload := []byte(`{"id": "movie-1", "title": "Inception"}`)

	_, _, err := c.CreateComponent(context.Background(), "Movie", payload)
	is.NoErr(err)

	_, _, err = c.CreateComponent(context.Background(), "Movie", payload)
	is.True(errors.Is(err, ErrAlreadyExists))
}

func TestCreateInvalidPayloadFailsWithBadRequest(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("editor"))

	_, _, err := c.CreateComponent(context.Background(),
		"Movie", []byte(`{"id": "movie-1", "title": ""}`),
	)
	is.True(errors.Is(err, ErrBadRequest))
}

func TestDeniedCallerFailsWithUnauthorized(t *testing.T) {
	is, ts, registry := setupTest(t)
	defer ts.Close()

	c := NewComponentStoreClient(ts.URL, registry, BearerToken("denied"))

	_, err := c.RetrieveComponent(context.Background(), "Movie", "movie-1")
	is.True(errors.Is(err, ErrUnauthorized))
}

func TestSelectorPaths(t *testing.T) {
	is := is.New(t)

	paths := selectorPaths("", selectors.Map{
		"title":    selectors.All,
		"director": selectors.Map{"name": selectors.All},
	})
	is.Equal(paths, []string{"director.name", "title"})

	paths = selectorPaths("", selectors.Map{"director": selectors.Map{}})
	is.Equal(paths, []string{"director"})
}

func setupTest(t *testing.T) (*is.I, *httptest.Server, *components.Registry) {
	is := is.New(t)

	cfg, err := store.LoadConfiguration(bytes.NewBufferString(configFile))
	is.NoErr(err)

	registry, err := store.BuildRegistry(cfg)
	is.NoErr(err)

	r := chi.NewRouter()
	err = component.RegisterHandlers(context.Background(), r, bytes.NewBufferString(opaModule), store.New(cfg, registry))
	is.NoErr(err)

	return is, httptest.NewServer(r), newRegistry(is)
}

// newRegistry builds a registry of its own for the client side, since the
// server side registry is already claimed by the store under test.
func newRegistry(is *is.I) *components.Registry {
	cfg, err := store.LoadConfiguration(bytes.NewBufferString(configFile))
	is.NoErr(err)

	registry, err := store.BuildRegistry(cfg)
	is.NoErr(err)

	return registry
}

const configFile string = `
tenants:
  - id: default
    name: Default
components:
  - name: Director
    attributes:
      - name: id
        type: string
        identifier: primary
      - name: name
        type: string
        optional: true
  - name: Movie
    attributes:
      - name: id
        type: string
        identifier: primary
      - name: title
        type: string
        validators: [notEmpty]
      - name: year
        type: number
        optional: true
      - name: director
        type: Director
        optional: true
  - name: Release
    attributes:
      - name: id
        type: number
        identifier: primary
      - name: label
        type: string
        optional: true
`

const opaModule string = `
package example.authz

default allow := false

allow = response {
    input.token != "denied"
    response := {
        "roles": [input.token],
    }
}
`
