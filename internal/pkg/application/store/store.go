// Package store implements a tenant aware, in memory component store. Each
// tenant holds its own identity scope, so the same identifier can exist in
// different tenants without conflict.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/diwise/component-model/pkg/model/attributes"
	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/identity"
	"github.com/diwise/component-model/pkg/model/selectors"
	"github.com/diwise/component-model/pkg/model/wire"
)

type Store interface {
	Registry() *components.Registry

	CreateComponent(ctx context.Context, tenant string, payload map[string]any) (*components.Component, error)
	RetrieveComponent(ctx context.Context, tenant, componentType, componentID string) (*components.Component, error)
	MergeComponent(ctx context.Context, tenant, componentType, componentID string, payload map[string]any) (*components.Component, error)
	DeleteComponent(ctx context.Context, tenant, componentType, componentID string) error
	QueryComponents(ctx context.Context, tenant, componentType string) ([]*components.Component, error)
}

type storeImpl struct {
	mu       sync.Mutex
	registry *components.Registry
	tenants  map[string]*tenantStore
}

type tenantStore struct {
	identities *identity.Registry
	instances  map[string]map[string]*components.Component
}

func New(cfg *Config, registry *components.Registry) Store {
	s := &storeImpl{
		registry: registry,
		tenants:  map[string]*tenantStore{},
	}

	for _, tenant := range cfg.Tenants {
		s.tenants[tenant.ID] = newTenantStore()
	}

	if len(s.tenants) == 0 {
		s.tenants["default"] = newTenantStore()
	}

	return s
}

func newTenantStore() *tenantStore {
	return &tenantStore{
		identities: identity.NewRegistry(),
		instances:  map[string]map[string]*components.Component{},
	}
}

func (s *storeImpl) Registry() *components.Registry {
	return s.registry
}

func (s *storeImpl) CreateComponent(ctx context.Context, tenant string, payload map[string]any) (*components.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, err := s.tenant(tenant)
	if err != nil {
		return nil, err
	}

	componentType, _ := payload[wire.KeyComponent].(string)

	definition, err := s.registry.Find(componentType)
	if err != nil {
		return nil, err
	}

	if idName := definition.PrimaryIdentifierName(); idName != "" {
		if id, present := payload[idName]; present {
			if _, exists := ts.lookup(componentType, fmt.Sprint(id)); exists {
				return nil, NewAlreadyExistsError(
					fmt.Sprintf("a component of type '%s' with id '%v' already exists", componentType, id),
				)
			}
		}
	}

	instance, err := wire.Deserialize(ctx, payload, s.registry,
		wire.WithIdentityRegistry(ts.identities),
		wire.WithSource(attributes.SourceClient),
	)
	if err != nil {
		if stderrors.Is(err, errors.ErrDuplicateIdentifier) {
			return nil, NewAlreadyExistsError(err.Error())
		}
		return nil, NewBadRequestDataError(err.Error())
	}

	if err := instance.EvaluateDefaults(); err != nil {
		instance.Release()
		return nil, NewBadRequestDataError(err.Error())
	}

	if err := instance.Validate(selectors.All); err != nil {
		instance.Release()
		return nil, NewBadRequestDataError(err.Error())
	}

	instance.MarkSaved()

	id, err := instance.ID()
	if err != nil {
		instance.Release()
		return nil, NewBadRequestDataError(err.Error())
	}

	ts.save(componentType, fmt.Sprint(id), instance)

	return instance, nil
}

func (s *storeImpl) RetrieveComponent(ctx context.Context, tenant, componentType, componentID string) (*components.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, instance, err := s.find(tenant, componentType, componentID)
	return instance, err
}

// MergeComponent applies a partial update. The payload is applied to a draft
// fork first and only committed to the stored instance if the merged result
// validates.
func (s *storeImpl) MergeComponent(ctx context.Context, tenant, componentType, componentID string, payload map[string]any) (*components.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, instance, err := s.find(tenant, componentType, componentID)
	if err != nil {
		return nil, err
	}

	draft := instance.Fork()

	if err := wire.Patch(ctx, draft, payload, s.registry, wire.WithSource(attributes.SourceClient)); err != nil {
		return nil, NewBadRequestDataError(err.Error())
	}

	if err := draft.Validate(selectors.All); err != nil {
		return nil, NewBadRequestDataError(err.Error())
	}

	err = wire.Patch(ctx, instance, payload, s.registry,
		wire.WithIdentityRegistry(ts.identities),
		wire.WithSource(attributes.SourceClient),
	)
	if err != nil {
		return nil, NewBadRequestDataError(err.Error())
	}

	return instance, nil
}

func (s *storeImpl) DeleteComponent(ctx context.Context, tenant, componentType, componentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, instance, err := s.find(tenant, componentType, componentID)
	if err != nil {
		return err
	}

	delete(ts.instances[componentType], componentID)
	instance.Release()

	return nil
}

func (s *storeImpl) QueryComponents(ctx context.Context, tenant, componentType string) ([]*components.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, err := s.tenant(tenant)
	if err != nil {
		return nil, err
	}

	if _, err := s.registry.Find(componentType); err != nil {
		return nil, err
	}

	byID := ts.instances[componentType]

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*components.Component, 0, len(ids))
	for _, id := range ids {
		result = append(result, byID[id])
	}

	return result, nil
}

func (s *storeImpl) tenant(tenant string) (*tenantStore, error) {
	ts, exists := s.tenants[tenant]
	if !exists {
		return nil, NewUnknownTenantError(tenant)
	}
	return ts, nil
}

func (s *storeImpl) find(tenant, componentType, componentID string) (*tenantStore, *components.Component, error) {
	ts, err := s.tenant(tenant)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.registry.Find(componentType); err != nil {
		return nil, nil, err
	}

	instance, exists := ts.lookup(componentType, componentID)
	if !exists {
		return nil, nil, NewNotFoundError(
			fmt.Sprintf("no component of type '%s' with id '%s' exists", componentType, componentID),
		)
	}

	return ts, instance, nil
}

func (ts *tenantStore) lookup(componentType, componentID string) (*components.Component, bool) {
	byID, exists := ts.instances[componentType]
	if !exists {
		return nil, false
	}
	instance, exists := byID[componentID]
	return instance, exists
}

func (ts *tenantStore) save(componentType, componentID string, instance *components.Component) {
	byID, exists := ts.instances[componentType]
	if !exists {
		byID = map[string]*components.Component{}
		ts.instances[componentType] = byID
	}
	byID[componentID] = instance
}
