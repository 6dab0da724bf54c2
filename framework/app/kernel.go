package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/go-registry/framework/config"
	"github.com/km-arc/go-registry/framework/logging"
	"github.com/km-arc/go-registry/framework/providers"
	"github.com/km-arc/go-registry/framework/registry"
)

// Application is a registry Context with its configuration, logger and
// providers wired. It embeds the Context so user code can call
// app.GetInstance(), app.Subscribe() directly.
type Application struct {
	*registry.Context
	Providers *registry.ProviderRegistry

	config *config.Config
}

// New loads configuration from envFiles (and REGISTRY_CONFIG_FILE), builds
// the logger and Context and registers the framework providers. Call Boot
// once user providers are registered.
func New(envFiles ...string) (*Application, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig is New with an already loaded configuration.
func NewWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	c := registry.New(registry.WithLogger(logger))
	reg := registry.NewProviderRegistry(c)
	app := &Application{
		Context:   c,
		Providers: reg,
		config:    cfg,
	}

	for _, p := range []registry.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.ConversionServiceProvider{},
		&providers.InspectServiceProvider{},
	} {
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	return app, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider registry.ServiceProvider) error {
	return a.Providers.Register(provider)
}

// Boot runs the Boot phase on all providers.
func (a *Application) Boot() error {
	if err := a.Providers.Boot(); err != nil {
		return err
	}
	a.Logger().Info("application booted",
		zap.String("name", a.config.App.Name),
		zap.String("env", a.config.App.Env),
		zap.Int("types", a.Len()))
	return nil
}

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config { return a.config }

// Handler boots the application if needed and returns the inspection
// routes, mounted under the configured prefix.
func (a *Application) Handler() (http.Handler, error) {
	if !a.Providers.Booted() {
		if err := a.Boot(); err != nil {
			return nil, err
		}
	}
	routes, err := registry.Instance[*providers.Routes](a.Context)
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// Environment returns REGISTRY_ENV value.
func (a *Application) Environment() string { return a.config.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.config.App.Debug }
