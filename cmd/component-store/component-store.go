package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"

	"github.com/diwise/component-model/internal/pkg/application/store"
	"github.com/diwise/component-model/internal/pkg/infrastructure/router"
	"github.com/diwise/component-model/internal/pkg/presentation/api/component"
)

const appName string = "component-store"

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	configPath := env.GetVariableOrDefault(ctx, "COMPONENT_STORE_CONFIG", "/opt/diwise/config/components.yaml")
	opaPath := env.GetVariableOrDefault(ctx, "COMPONENT_STORE_POLICIES", "/opt/diwise/config/authz.rego")
	port := env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080")

	s, err := newStore(configPath)
	if err != nil {
		log.Error("failed to configure the component store", "err", err.Error())
		os.Exit(1)
	}

	r := router.New(appName)

	policies, err := os.Open(opaPath)
	if err != nil {
		log.Error("failed to open authz policies", "path", opaPath, "err", err.Error())
		os.Exit(1)
	}
	defer policies.Close()

	if err := component.RegisterHandlers(ctx, r, policies, s); err != nil {
		log.Error("failed to register handlers", "err", err.Error())
		os.Exit(1)
	}

	log.Info("starting to listen for connections", "port", port)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Error("failed to listen for connections", "err", err.Error())
		os.Exit(1)
	}
}

func newStore(configPath string) (store.Store, error) {
	configFile, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration file %s: %w", configPath, err)
	}
	defer configFile.Close()

	cfg, err := store.LoadConfiguration(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	registry, err := store.BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	return store.New(cfg, registry), nil
}
