package registry

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the startup registrations of one feature.
//
// Register declares constructors and conversion operators. Boot runs after
// every provider has registered, so it may request instances.
//
//	type SessionProvider struct{ registry.BaseProvider }
//
//	func (p *SessionProvider) Register(c *registry.Context) {
//	    registry.ProvideKeyed(c, func(id string) *Session { return &Session{} })
//	}
//
//	func (p *SessionProvider) Boot(c *registry.Context) error {
//	    _, err := registry.Keyed[string, *Session](c)
//	    return err
//	}
type ServiceProvider interface {
	// Register adds constructors and operators. Do not request instances here.
	Register(c *Context)

	// Boot is called after all providers are registered.
	Boot(c *Context) error
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable no-op Boot.
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Context) error { return nil }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry registers and boots ServiceProviders against one Context.
type ProviderRegistry struct {
	ctx *Context

	mu         sync.Mutex
	providers  []ServiceProvider
	registered map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a registry bound to c.
func NewProviderRegistry(c *Context) *ProviderRegistry {
	return &ProviderRegistry{
		ctx:        c,
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register method. Registering the
// same provider twice is a no-op. After Boot, the provider is booted at once.
func (r *ProviderRegistry) Register(p ServiceProvider) error {
	r.mu.Lock()
	if r.registered[p] {
		r.mu.Unlock()
		return nil
	}
	r.registered[p] = true
	r.providers = append(r.providers, p)
	booted := r.booted
	r.mu.Unlock()

	p.Register(r.ctx)
	if booted {
		return r.boot(p)
	}
	return nil
}

// Boot calls Boot on every registered provider in registration order. Every
// provider boots even when an earlier one fails; the errors are joined.
func (r *ProviderRegistry) Boot() error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := append([]ServiceProvider(nil), r.providers...)
	r.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if err := r.boot(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *ProviderRegistry) boot(p ServiceProvider) error {
	if err := p.Boot(r.ctx); err != nil {
		r.ctx.log.Error("provider boot failed", zap.String("provider", fmt.Sprintf("%T", p)), zap.Error(err))
		return fmt.Errorf("boot %T: %w", p, err)
	}
	return nil
}

// Booted reports whether Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the registered providers in registration order.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.providers...)
}
