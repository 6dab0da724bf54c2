package providers

import (
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"

	"github.com/km-arc/go-registry/framework/config"
	"github.com/km-arc/go-registry/framework/convert"
	"github.com/km-arc/go-registry/framework/inspect"
	"github.com/km-arc/go-registry/framework/registry"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// Settings is the managed holder of the application configuration.
type Settings struct {
	registry.Base
	*config.Config
}

// ConfigServiceProvider publishes the configuration as *Settings. A nil
// Config is loaded from the environment; a load failure surfaces at Boot.
type ConfigServiceProvider struct {
	registry.BaseProvider
	Config *config.Config

	err error
}

func (p *ConfigServiceProvider) Register(c *registry.Context) {
	cfg := p.Config
	if cfg == nil {
		cfg, p.err = config.Load()
	}
	registry.Provide(c, func() *Settings { return &Settings{Config: cfg} })
}

func (p *ConfigServiceProvider) Boot(c *registry.Context) error {
	if p.err != nil {
		return p.err
	}
	_, err := registry.Instance[*Settings](c)
	return err
}

// ── ConversionServiceProvider ─────────────────────────────────────────────────

// ConversionServiceProvider installs custom conversion strategies and
// operators on the Context's resolver.
//
//	&providers.ConversionServiceProvider{
//	    Strategies: []convert.Strategy{convert.Numeric{}},
//	    Operators: map[reflect.Type][]convert.Operator{
//	        reflect.TypeFor[int](): {convert.Implicit(func(i int) OrderID { return OrderID(i) })},
//	    },
//	}
type ConversionServiceProvider struct {
	registry.BaseProvider
	Strategies []convert.Strategy
	Operators  map[reflect.Type][]convert.Operator
}

func (p *ConversionServiceProvider) Register(c *registry.Context) {
	r := c.Converter()
	if len(p.Strategies) > 0 {
		r.Use(p.Strategies...)
	}
	for owner, ops := range p.Operators {
		r.On(owner).Declare(ops...)
	}
}

// ── InspectServiceProvider ────────────────────────────────────────────────────

// Routes is the managed HTTP handler serving the inspection routes under
// the configured prefix.
type Routes struct {
	registry.Base
	http.Handler
}

// InspectServiceProvider publishes *Routes, built from *Settings.
type InspectServiceProvider struct {
	registry.BaseProvider
}

func (p *InspectServiceProvider) Register(c *registry.Context) {
	registry.Provide(c, func() *Routes {
		prefix := "/_registry"
		if s, err := registry.Instance[*Settings](c); err == nil && s.Config != nil && s.Inspect.Prefix != "" {
			prefix = s.Inspect.Prefix
		}
		r := chi.NewRouter()
		r.Mount(prefix, inspect.New(c))
		return &Routes{Handler: r}
	})
}
