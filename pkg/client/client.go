package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diwise/component-model/pkg/model/components"
	"github.com/diwise/component-model/pkg/model/identity"
	"github.com/diwise/component-model/pkg/model/wire"
)

const (
	TraceAttributeTenant      string = "componentstore-tenant"
	TraceAttributeComponentID string = "component-id"

	DefaultTenant string = "default"
)

var tracer = otel.Tracer("component-model/client")

// ComponentStoreClient talks to a remote component store over its HTTP API,
// decoding retrieved payloads into live component instances.
type ComponentStoreClient interface {
	CreateComponent(ctx context.Context, componentType string, body []byte) (*components.Component, string, error)
	RetrieveComponent(ctx context.Context, componentType, componentID string, parameters ...RequestDecoratorFunc) (*components.Component, error)
	QueryComponents(ctx context.Context, componentType string, parameters ...RequestDecoratorFunc) ([]*components.Component, error)
	MergeComponent(ctx context.Context, componentType, componentID string, fragment []byte) error
	DeleteComponent(ctx context.Context, componentType, componentID string) error
}

type csClient struct {
	baseURL    string
	tenant     string
	authToken  string
	debug      bool
	registry   *components.Registry
	identities *identity.Registry
}

func Debug(enabled string) func(*csClient) {
	return func(c *csClient) {
		c.debug = (enabled == "true")
	}
}

func Tenant(tenant string) func(*csClient) {
	return func(c *csClient) {
		c.tenant = tenant
	}
}

func BearerToken(token string) func(*csClient) {
	return func(c *csClient) {
		c.authToken = token
	}
}

// NewComponentStoreClient returns a client for the component store at the
// given URL. The registry tells the client which component definitions it
// can decode. Retrieved instances are tracked in a client local identity
// map, so retrieving the same component twice patches the first instance
// instead of creating a copy.
func NewComponentStoreClient(componentStoreURL string, registry *components.Registry, options ...func(*csClient)) ComponentStoreClient {
	c := &csClient{
		baseURL:    componentStoreURL,
		tenant:     DefaultTenant,
		registry:   registry,
		identities: identity.NewRegistry(),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

func (c csClient) CreateComponent(ctx context.Context, componentType string, body []byte) (*components.Component, string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-component",
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callComponentStore(
		ctx, http.MethodPost, c.baseURL+"/api/components/"+url.PathEscape(componentType)+"/", bytes.NewBuffer(body),
	)

	if err != nil {
		return nil, "", err
	}

	if response.StatusCode != http.StatusCreated {
		err = errorFromResponse(response, responseBody)
		return nil, "", err
	}

	instance, err := c.decode(ctx, componentType, responseBody)
	if err != nil {
		return nil, "", err
	}

	return instance, response.Header.Get("Location"), nil
}

func (c csClient) RetrieveComponent(ctx context.Context, componentType, componentID string, parameters ...RequestDecoratorFunc) (*components.Component, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-component",
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeComponentID, componentID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.baseURL + "/api/components/" + url.PathEscape(componentType) + "/" + url.PathEscape(componentID) + "/" + urlParams(parameters)

	response, responseBody, err := c.callComponentStore(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		err = errorFromResponse(response, responseBody)
		return nil, err
	}

	return c.decode(ctx, componentType, responseBody)
}

func (c csClient) QueryComponents(ctx context.Context, componentType string, parameters ...RequestDecoratorFunc) ([]*components.Component, error) {
	var err error

	ctx, span := tracer.Start(ctx, "query-components",
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.baseURL + "/api/components/" + url.PathEscape(componentType) + "/" + urlParams(parameters)

	response, responseBody, err := c.callComponentStore(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		err = errorFromResponse(response, responseBody)
		return nil, err
	}

	payloads := []map[string]any{}
	err = json.Unmarshal(responseBody, &payloads)
	if err != nil {
		if c.debug && len(responseBody) < 1000 {
			err = fmt.Errorf("unmarshaling of %s failed with err %s", string(responseBody), err.Error())
		}

		return nil, err
	}

	instances := make([]*components.Component, 0, len(payloads))

	for _, payload := range payloads {
		instance, err := wire.Deserialize(ctx, payload, c.registry,
			wire.WithIdentityRegistry(c.identities),
			wire.WithExpectedType(componentType),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to decode component: %s (%w)", err.Error(), ErrBadResponse)
		}

		instances = append(instances, instance)
	}

	return instances, nil
}

func (c csClient) MergeComponent(ctx context.Context, componentType, componentID string, fragment []byte) error {
	var err error

	ctx, span := tracer.Start(ctx, "merge-component",
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeComponentID, componentID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.baseURL + "/api/components/" + url.PathEscape(componentType) + "/" + url.PathEscape(componentID) + "/"

	response, responseBody, err := c.callComponentStore(ctx, http.MethodPatch, endpoint, bytes.NewBuffer(fragment))
	if err != nil {
		return err
	}

	if response.StatusCode != http.StatusNoContent {
		err = errorFromResponse(response, responseBody)
		return err
	}

	// keep any previously retrieved instance of this component in sync
	if local, exists := c.lookupLocal(componentType, componentID); exists {
		payload := map[string]any{}
		if jsonErr := json.Unmarshal(fragment, &payload); jsonErr == nil {
			err = wire.Patch(ctx, local, payload, c.registry, wire.WithIdentityRegistry(c.identities))
			return err
		}
	}

	return nil
}

// lookupLocal finds a previously decoded instance by its identifier. Decoded
// numeric identifiers are keyed as float64, so the path parameter is retried
// in numeric form when the string form misses.
func (c csClient) lookupLocal(componentType, componentID string) (*components.Component, bool) {
	keys := []any{componentID}
	if numeric, err := strconv.ParseFloat(componentID, 64); err == nil {
		keys = append(keys, numeric)
	}

	for _, key := range keys {
		if instance, exists := c.identities.Lookup(componentType, key); exists {
			if local, ok := instance.(*components.Component); ok {
				return local, true
			}
		}
	}

	return nil, false
}

func (c csClient) DeleteComponent(ctx context.Context, componentType, componentID string) error {
	var err error

	ctx, span := tracer.Start(ctx, "delete-component",
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
		trace.WithAttributes(attribute.String(TraceAttributeComponentID, componentID)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.baseURL + "/api/components/" + url.PathEscape(componentType) + "/" + url.PathEscape(componentID) + "/"

	response, responseBody, err := c.callComponentStore(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	if response.StatusCode != http.StatusNoContent {
		err = errorFromResponse(response, responseBody)
		return err
	}

	return nil
}

func (c csClient) decode(ctx context.Context, componentType string, body []byte) (*components.Component, error) {
	instance, err := wire.Unmarshal(ctx, body, c.registry,
		wire.WithIdentityRegistry(c.identities),
		wire.WithExpectedType(componentType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decode component: %s (%w)", err.Error(), ErrBadResponse)
	}

	return instance, nil
}

func (c csClient) callComponentStore(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, []byte, error) {
	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrInternal)
	}

	if c.tenant != DefaultTenant {
		req.Header.Add("X-Tenant", c.tenant)
	}

	if c.authToken != "" {
		req.Header.Add("Authorization", "Bearer "+c.authToken)
	}

	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrBadResponse)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusNotFound {
			reqbytes, _ := httputil.DumpRequest(req, false)
			respbytes, _ := httputil.DumpResponse(resp, false)

			log := logging.GetFromContext(ctx)
			log.Error("request failed",
				slog.String("request", string(reqbytes)),
				slog.String("response", string(respbytes)),
			)
		}
	}

	return resp, respBody, nil
}

func errorFromResponse(response *http.Response, responseBody []byte) error {
	contentType := response.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/problem+json") {
		return NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
	}

	return fmt.Errorf("component store returned status code %d (content-type: %s, body: %s)",
		response.StatusCode, contentType, string(responseBody),
	)
}

func urlParams(parameters []RequestDecoratorFunc) string {
	params := make([]string, 0, len(parameters))
	for _, rdf := range parameters {
		params = rdf(params)
	}

	if len(params) == 0 {
		return ""
	}

	return "?" + strings.Join(params, "&")
}
