package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/wire"
)

func TestCreateAndRetrieve(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	created, err := s.CreateComponent(ctx, "default", map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Inception",
		"year":            2010.0,
	})
	is.NoErr(err)
	is.True(!created.IsNew())

	found, err := s.RetrieveComponent(ctx, "default", "Movie", "movie-1")
	is.NoErr(err)
	is.True(found == created)

	title, _, err := found.AttributeValue("title")
	is.NoErr(err)
	is.Equal(title, "Inception")
}

func TestCreateGeneratesMissingIdentifiers(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	created, err := s.CreateComponent(ctx, "default", map[string]any{
		wire.KeyComponent: "Movie",
		"title":           "Tenet",
	})
	is.NoErr(err)
	is.True(created.HasID())

	id, err := created.ID()
	is.NoErr(err)

	found, err := s.RetrieveComponent(ctx, "default", "Movie", id.(string))
	is.NoErr(err)
	is.True(found == created)
}

func TestCreateRejectsDuplicatesAndInvalidData(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	payload := map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Inception",
	}

	_, err := s.CreateComponent(ctx, "default", payload)
	is.NoErr(err)

	_, err = s.CreateComponent(ctx, "default", payload)
	_, isAlreadyExists := err.(AlreadyExistsError)
	is.True(isAlreadyExists)

	_, err = s.CreateComponent(ctx, "default", map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-2",
		"title":           "",
	})
	_, isBadRequest := err.(BadRequestDataError)
	is.True(isBadRequest)

	// the failed creation must not leak into the identity scope
	_, err = s.CreateComponent(ctx, "default", map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-2",
		"title":           "Tenet",
	})
	is.NoErr(err)
}

func TestTenantsAreIsolated(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	payload := map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Inception",
	}

	_, err := s.CreateComponent(ctx, "default", payload)
	is.NoErr(err)

	_, err = s.CreateComponent(ctx, "cinema", map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Another Inception",
	})
	is.NoErr(err)

	_, err = s.RetrieveComponent(ctx, "unknown", "Movie", "movie-1")
	_, isUnknownTenant := err.(UnknownTenantError)
	is.True(isUnknownTenant)
}

func TestMergeCommitsValidDrafts(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	created, err := s.CreateComponent(ctx, "default", map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Inception",
		"year":            2010.0,
	})
	is.NoErr(err)

	merged, err := s.MergeComponent(ctx, "default", "Movie", "movie-1", map[string]any{
		"year": 2011.0,
	})
	is.NoErr(err)
	is.True(merged == created)

	year, _, err := created.AttributeValue("year")
	is.NoErr(err)
	is.Equal(year, 2011.0)
}

func TestMergeRejectsInvalidDraftsWithoutMutating(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	created, err := s.CreateComponent(ctx, "default", map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Inception",
	})
	is.NoErr(err)

	_, err = s.MergeComponent(ctx, "default", "Movie", "movie-1", map[string]any{
		"title": "",
	})
	_, isBadRequest := err.(BadRequestDataError)
	is.True(isBadRequest)

	title, _, err := created.AttributeValue("title")
	is.NoErr(err)
	is.Equal(title, "Inception")

	_, err = s.MergeComponent(ctx, "default", "Movie", "movie-1", map[string]any{
		"id": "movie-2",
	})
	_, isBadRequest = err.(BadRequestDataError)
	is.True(isBadRequest)
}

func TestDeleteFreesTheIdentifier(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	payload := map[string]any{
		wire.KeyComponent: "Movie",
		"id":              "movie-1",
		"title":           "Inception",
	}

	_, err := s.CreateComponent(ctx, "default", payload)
	is.NoErr(err)

	is.NoErr(s.DeleteComponent(ctx, "default", "Movie", "movie-1"))

	_, err = s.RetrieveComponent(ctx, "default", "Movie", "movie-1")
	_, isNotFound := err.(NotFoundError)
	is.True(isNotFound)

	_, err = s.CreateComponent(ctx, "default", payload)
	is.NoErr(err)
}

func TestQueryReturnsInstancesOrderedByID(t *testing.T) {
	is := is.New(t)
	ctx, s := testStore(t)

	for _, id := range []string{"movie-3", "movie-1", "movie-2"} {
		_, err := s.CreateComponent(ctx, "default", map[string]any{
			wire.KeyComponent: "Movie",
			"id":              id,
			"title":           "a title",
		})
		is.NoErr(err)
	}

	result, err := s.QueryComponents(ctx, "default", "Movie")
	is.NoErr(err)
	is.Equal(len(result), 3)

	first, err := result[0].ID()
	is.NoErr(err)
	is.Equal(first, "movie-1")
}

func V(name string, value any) components.InstanceDecoratorFunc {
	return components.V(name, value)
}

func testRegistry(t *testing.T) *components.Registry {
	t.Helper()

	cfg, err := LoadConfiguration(bytes.NewBufferString(configFile))
	if err != nil {
		t.Fatal(err)
	}

	registry, err := BuildRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}

	return registry
}

func testStore(t *testing.T) (context.Context, Store) {
	t.Helper()

	cfg, err := LoadConfiguration(bytes.NewBufferString(configFile))
	if err != nil {
		t.Fatal(err)
	}

	registry, err := BuildRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}

	return context.Background(), New(cfg, registry)
}
