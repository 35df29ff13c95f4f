// Package component exposes the component store over HTTP. Instances travel
// in their wire representation; the attrs query parameter narrows retrieval
// with an attribute selector and exposure settings decide what a caller may
// read or write.
package component

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"

	"github.com/diwise/component-model/internal/pkg/application/store"
	"github.com/diwise/component-model/internal/pkg/presentation/api/component/auth"
	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/errors"
	"github.com/diwise/component-model/pkg/model/properties"
	"github.com/diwise/component-model/pkg/model/selectors"
	"github.com/diwise/component-model/pkg/model/wire"
)

var tracer = otel.Tracer("component-model/api/components")

func RegisterHandlers(ctx context.Context, r chi.Router, policies io.Reader, s store.Store) error {

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return fmt.Errorf("failed to create api authenticator: %w", err)
	}

	r.Route("/api/components", func(r chi.Router) {
		r.Use(TenantMiddleware())

		r.Get("/", NewListComponentTypesHandler(s))

		r.Route("/{componentType}", func(r chi.Router) {
			r.Get("/", NewQueryComponentsHandler(s, authenticator))
			r.Post("/", NewCreateComponentHandler(s, authenticator))

			r.Route("/{componentID}", func(r chi.Router) {
				r.Get("/", NewRetrieveComponentHandler(s, authenticator))
				r.Patch("/", NewMergeComponentHandler(s, authenticator))
				r.Delete("/", NewDeleteComponentHandler(s, authenticator))
			})
		})
	})

	return nil
}

type tenantContextKey struct {
	name string
}

var tenantCtxKey = &tenantContextKey{"component-tenant"}

// TenantMiddleware packs any tenant id into the context.
func TenantMiddleware() func(http.Handler) http.Handler {
	tenantHeaderName := http.CanonicalHeaderKey("X-Tenant")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := "default"

			tenantHeader := r.Header[tenantHeaderName]
			if len(tenantHeader) > 0 {
				tenant = tenantHeader[0]
			}

			ctx := context.WithValue(r.Context(), tenantCtxKey, tenant)

			ctx = logging.NewContextWithLogger(
				ctx,
				logging.GetFromContext(r.Context()),
				"tenant",
				tenant,
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantFromContext extracts the tenant name, if any, from the provided
// context.
func GetTenantFromContext(ctx context.Context) string {
	tenant, ok := ctx.Value(tenantCtxKey).(string)

	if !ok {
		return ""
	}

	return tenant
}

func NewListComponentTypesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"types": s.Registry().Names(),
		})
	}
}

func NewCreateComponentHandler(s store.Store, authenticator auth.Enticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-component")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		componentType := chi.URLParam(r, "componentType")
		tenant := GetTenantFromContext(ctx)

		ctx, err = checkAccess(ctx, r, authenticator, tenant, componentType)
		if err != nil {
			respondWithProblem(w, http.StatusUnauthorized, err.Error())
			return
		}

		payload := map[string]any{}
		if err = json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondWithProblem(w, http.StatusBadRequest, "request body is not a valid json object")
			return
		}

		payload[wire.KeyComponent] = componentType

		instance, err := s.CreateComponent(ctx, tenant, payload)
		if err != nil {
			mapError(ctx, w, err)
			return
		}

		body, err := serializeExposed(ctx, instance, selectors.All)
		if err != nil {
			mapError(ctx, w, err)
			return
		}

		id, _ := instance.ID()
		w.Header().Set("Location", fmt.Sprintf("/api/components/%s/%v", componentType, id))
		respondWithJSON(w, http.StatusCreated, body)
	}
}

func NewRetrieveComponentHandler(s store.Store, authenticator auth.Enticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-component")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		componentType := chi.URLParam(r, "componentType")
		componentID := chi.URLParam(r, "componentID")
		tenant := GetTenantFromContext(ctx)

		ctx, err = checkAccess(ctx, r, authenticator, tenant, componentType)
		if err != nil {
			respondWithProblem(w, http.StatusUnauthorized, err.Error())
			return
		}

		selector, err := ParseSelector(r.URL.Query().Get("attrs"))
		if err != nil {
			respondWithProblem(w, http.StatusBadRequest, err.Error())
			return
		}

		instance, err := s.RetrieveComponent(ctx, tenant, componentType, componentID)
		if err != nil {
			mapError(ctx, w, err)
			return
		}

		body, err := serializeExposed(ctx, instance, selector)
		if err != nil {
			mapError(ctx, w, err)
			return
		}

		respondWithJSON(w, http.StatusOK, body)
	}
}

func NewQueryComponentsHandler(s store.Store, authenticator auth.Enticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "query-components")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		componentType := chi.URLParam(r, "componentType")
		tenant := GetTenantFromContext(ctx)

		ctx, err = checkAccess(ctx, r, authenticator, tenant, componentType)
		if err != nil {
			respondWithProblem(w, http.StatusUnauthorized, err.Error())
			return
		}

		selector, err := ParseSelector(r.URL.Query().Get("attrs"))
		if err != nil {
			respondWithProblem(w, http.StatusBadRequest, err.Error())
			return
		}

		instances, err := s.QueryComponents(ctx, tenant, componentType)
		if err != nil {
			mapError(ctx, w, err)
			return
		}

		result := make([]map[string]any, 0, len(instances))
		for _, instance := range instances {
			body, err := serializeExposed(ctx, instance, selector)
			if err != nil {
				mapError(ctx, w, err)
				return
			}
			result = append(result, body)
		}

		respondWithJSON(w, http.StatusOK, result)
	}
}

func NewMergeComponentHandler(s store.Store, authenticator auth.Enticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "merge-component")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		componentType := chi.URLParam(r, "componentType")
		componentID := chi.URLParam(r, "componentID")
		tenant := GetTenantFromContext(ctx)

		ctx, err = checkAccess(ctx, r, authenticator, tenant, componentType)
		if err != nil {
			respondWithProblem(w, http.StatusUnauthorized, err.Error())
			return
		}

		payload := map[string]any{}
		if err = json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondWithProblem(w, http.StatusBadRequest, "request body is not a valid json object")
			return
		}

		instance, err := s.RetrieveComponent(ctx, tenant, componentType, componentID)
		if err != nil {
			mapError(ctx, w, err)
			return
		}

		if err = checkWriteExposure(ctx, instance, payload); err != nil {
			respondWithProblem(w, http.StatusForbidden, err.Error())
			return
		}

		if _, err = s.MergeComponent(ctx, tenant, componentType, componentID, payload); err != nil {
			mapError(ctx, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewDeleteComponentHandler(s store.Store, authenticator auth.Enticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-component")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		componentType := chi.URLParam(r, "componentType")
		componentID := chi.URLParam(r, "componentID")
		tenant := GetTenantFromContext(ctx)

		ctx, err = checkAccess(ctx, r, authenticator, tenant, componentType)
		if err != nil {
			respondWithProblem(w, http.StatusUnauthorized, err.Error())
			return
		}

		if err = s.DeleteComponent(ctx, tenant, componentType, componentID); err != nil {
			mapError(ctx, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func checkAccess(ctx context.Context, r *http.Request, authenticator auth.Enticator, tenant, componentType string) (context.Context, error) {
	roles, err := authenticator.CheckAccess(ctx, r, tenant, []string{componentType})
	if err != nil {
		return ctx, err
	}

	return store.WithCallerRoles(ctx, roles), nil
}

// ParseSelector converts a comma separated attrs parameter such as
// "title,director.name" into an attribute selector. An empty parameter
// selects everything.
func ParseSelector(attrs string) (selectors.Selector, error) {
	if attrs == "" {
		return selectors.All, nil
	}

	result := selectors.Map{}

	for _, path := range strings.Split(attrs, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, fmt.Errorf("attrs parameter contains an empty attribute path")
		}

		current := result
		segments := strings.Split(path, ".")

		for i, segment := range segments {
			if i == len(segments)-1 {
				current[segment] = selectors.All
				break
			}

			nested, exists := current[segment].(selectors.Map)
			if !exists {
				nested = selectors.Map{}
				current[segment] = nested
			}
			current = nested
		}
	}

	return result, nil
}

var errNoReadableAttributes = stderrors.New("no attribute of this component is readable")

// serializeExposed narrows the selector to the attributes the caller may get
// before serializing. A caller with no readable attribute gets an error
// instead of a reference payload, so even the identifier stays hidden.
func serializeExposed(ctx context.Context, instance *components.Component, s selectors.Selector) (map[string]any, error) {
	exposed := selectors.Map{}

	for _, name := range instance.Definition().AttributeNames() {
		sub := selectors.Get(s, name)
		if sub == selectors.None {
			continue
		}

		allowed, err := instance.OperationAllowed(ctx, name, properties.OperationGet)
		if err != nil {
			return nil, err
		}
		if allowed {
			exposed[name] = sub
		}
	}

	if len(exposed) == 0 {
		return nil, errNoReadableAttributes
	}

	return wire.Serialize(instance, exposed)
}

func checkWriteExposure(ctx context.Context, instance *components.Component, payload map[string]any) error {
	for _, name := range instance.Definition().AttributeNames() {
		if _, present := payload[name]; !present {
			continue
		}

		allowed, err := instance.OperationAllowed(ctx, name, properties.OperationSet)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("attribute '%s' is not writable", name)
		}
	}

	return nil
}

func mapError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := logging.GetFromContext(ctx)

	switch e := err.(type) {
	case store.NotFoundError:
		respondWithProblem(w, http.StatusNotFound, e.Error())
	case store.UnknownTenantError:
		respondWithProblem(w, http.StatusNotFound, e.Error())
	case store.AlreadyExistsError:
		respondWithProblem(w, http.StatusConflict, e.Error())
	case store.BadRequestDataError:
		respondWithProblem(w, http.StatusBadRequest, e.Error())
	default:
		if stderrors.Is(err, errors.ErrUnknownComponentType) {
			respondWithProblem(w, http.StatusNotFound, err.Error())
			return
		}

		if stderrors.Is(err, errNoReadableAttributes) {
			respondWithProblem(w, http.StatusForbidden, err.Error())
			return
		}

		logger.Error("request failed", "err", err.Error())
		respondWithProblem(w, http.StatusInternalServerError, err.Error())
	}
}

func respondWithProblem(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)

	body, _ := json.Marshal(map[string]any{
		"title":  http.StatusText(code),
		"detail": detail,
	})
	w.Write(body)
}

func respondWithJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	data, _ := json.Marshal(body)
	w.Write(data)
}
