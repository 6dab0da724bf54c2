package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-registry/framework/convert"
	"github.com/km-arc/go-registry/framework/ctor"
	regerrors "github.com/km-arc/go-registry/framework/errors"
)

// ── Context ───────────────────────────────────────────────────────────────────

// Context is a type registry: it holds at most one managed instance per
// runtime type and creates it lazily on first request.
//
// A Context also owns the constructor synthesizer and the conversion resolver
// its registries build with, and the event hub that selector indexes watch.
// There is no process-wide Context; pass one explicitly.
//
// Construction of a type is serialized per type, not globally, so a
// constructor may request other types. A constructor that (directly or not)
// requests its own type deadlocks.
type Context struct {
	id    string
	log   *zap.Logger
	ctors *ctor.Synthesizer
	conv  *convert.Resolver
	hub   *hub

	mu sync.Mutex

	// type → published instance
	instances map[reflect.Type]Managed

	// creation order of instances
	order []reflect.Type

	// type → construction lock
	slots map[reflect.Type]*sync.Mutex

	selMu     sync.Mutex
	selectors map[selectorKey]any
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSynthesizer sets the constructor synthesizer.
func WithSynthesizer(s *ctor.Synthesizer) Option {
	return func(c *Context) {
		if s != nil {
			c.ctors = s
		}
	}
}

// WithResolver sets the conversion resolver.
func WithResolver(r *convert.Resolver) Option {
	return func(c *Context) {
		if r != nil {
			c.conv = r
		}
	}
}

// New creates an empty Context.
func New(opts ...Option) *Context {
	c := &Context{
		id:        uuid.NewString(),
		log:       zap.NewNop(),
		hub:       newHub(),
		instances: make(map[reflect.Type]Managed),
		slots:     make(map[reflect.Type]*sync.Mutex),
		selectors: make(map[selectorKey]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ctors == nil {
		c.ctors = ctor.New()
	}
	if c.conv == nil {
		c.conv = convert.New(convert.WithLogger(c.log))
	}
	c.log = c.log.With(zap.String("context_id", c.id))
	return c
}

// ID returns the unique identifier of this Context.
func (c *Context) ID() string { return c.id }

// Logger returns the Context's logger.
func (c *Context) Logger() *zap.Logger { return c.log }

// Constructors returns the synthesizer used to build instances.
func (c *Context) Constructors() *ctor.Synthesizer { return c.ctors }

// Converter returns the resolver used to convert loosely-typed keys.
func (c *Context) Converter() *convert.Resolver { return c.conv }

// ── Registration ──────────────────────────────────────────────────────────────

// Provide registers the constructor for the managed type T.
//
//	registry.Provide(c, func() *Clock { return &Clock{start: time.Now()} })
func Provide[T Managed](c *Context, fn func() T) {
	ctor.Provide0(c.ctors, fn)
}

// ProvideKeyed registers the keyed constructor for T.
//
//	registry.ProvideKeyed(c, func(id string) *Session { return &Session{} })
func ProvideKeyed[K comparable, T KeyedManaged[K]](c *Context, fn func(K) T) {
	ctor.Provide1(c.ctors, fn)
}

// Register publishes a pre-built instance under its own runtime type. It
// fails with a conflict error when the type already has an instance.
func (c *Context) Register(m Managed) error {
	if m == nil || isNil(m) {
		return regerrors.NewInvalidArgument("registry.Register", "nil instance")
	}
	t := reflect.TypeOf(m)
	if err := c.insert(t, m); err != nil {
		return err
	}
	return c.initialized(m)
}

// ── Resolution ────────────────────────────────────────────────────────────────

// GetInstance returns the instance of t, creating it on first use through the
// constructor synthesizer. Concurrent first requests construct exactly once.
//
// When creation observers fail the instance stays registered and the joined
// error is returned with no instance; later calls return the instance.
func (c *Context) GetInstance(t reflect.Type) (Managed, error) {
	if t == nil {
		return nil, regerrors.NewInvalidArgument("registry.GetInstance", "nil type")
	}
	if !t.Implements(managedType) {
		return nil, &regerrors.TypeMismatchError{Type: t, Want: "registry.Managed"}
	}

	return c.getOrCreate(t, func() (Managed, error) {
		if t.Implements(selfConstructedType) {
			return nil, &regerrors.UnsupportedTypeError{Type: t}
		}
		newT, err := c.ctors.GetCtor(t)
		if err != nil {
			return nil, err
		}
		v, err := newT()
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", t, err)
		}
		m, ok := v.(Managed)
		if !ok || isNil(m) {
			return nil, regerrors.NewInvalidArgument("registry.GetInstance",
				fmt.Sprintf("constructor for %s returned no instance", t))
		}
		return m, nil
	})
}

// Instance returns the instance of T.
//
//	clock, err := registry.Instance[*Clock](c)
func Instance[T Managed](c *Context) (T, error) {
	var zero T
	m, err := c.GetInstance(reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	v, ok := m.(T)
	if !ok {
		return zero, &regerrors.TypeMismatchError{Type: reflect.TypeOf(m), Want: reflect.TypeFor[T]().String()}
	}
	return v, nil
}

// MustInstance is Instance that panics on error.
func MustInstance[T Managed](c *Context) T {
	v, err := Instance[T](c)
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return v
}

// Lookup returns the instance of t without creating it.
func (c *Context) Lookup(t reflect.Type) (Managed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.instances[t]
	return m, ok
}

// getOrCreate returns the published instance of t or builds it with build
// while holding t's construction lock.
func (c *Context) getOrCreate(t reflect.Type, build func() (Managed, error)) (Managed, error) {
	c.mu.Lock()
	if m, ok := c.instances[t]; ok {
		c.mu.Unlock()
		return m, nil
	}
	slot, ok := c.slots[t]
	if !ok {
		slot = &sync.Mutex{}
		c.slots[t] = slot
	}
	c.mu.Unlock()

	slot.Lock()
	if m, ok := c.Lookup(t); ok {
		slot.Unlock()
		return m, nil
	}
	m, err := build()
	if err == nil {
		err = c.insert(t, m)
		if regerrors.IsConflict(err) {
			// Register published one while we were building.
			if cur, ok := c.Lookup(t); ok {
				slot.Unlock()
				m.markRemoved()
				return cur, nil
			}
		}
	}
	slot.Unlock()
	if err != nil {
		c.log.Debug("instance not created", zap.Stringer("type", t), zap.Error(err))
		return nil, err
	}

	if err := c.initialized(m); err != nil {
		return nil, err
	}
	return m, nil
}

// insert publishes m under t.
func (c *Context) insert(t reflect.Type, m Managed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.instances[t]; ok {
		return regerrors.NewConflict("type registry", t, nil)
	}
	c.instances[t] = m
	c.order = append(c.order, t)
	return nil
}

// initialized announces a freshly published instance and runs its hook.
func (c *Context) initialized(m Managed) error {
	c.log.Debug("instance created", zap.String("type", TypeKey(reflect.TypeOf(m))))
	err := c.hub.publish(Created, m)
	if err != nil {
		c.log.Warn("creation observer failed", zap.String("type", TypeKey(reflect.TypeOf(m))), zap.Error(err))
	}
	if init, ok := m.(Initializer); ok {
		init.AfterInitialize(c)
	}
	return err
}

// removed announces an evicted instance.
func (c *Context) removed(m Managed) {
	if err := c.hub.publish(Removed, m); err != nil {
		c.log.Warn("removal observer failed", zap.String("type", TypeKey(reflect.TypeOf(m))), zap.Error(err))
	}
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Types returns the registered types in creation order.
func (c *Context) Types() []reflect.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]reflect.Type(nil), c.order...)
}

// Instances returns the registered instances in creation order.
func (c *Context) Instances() []Managed {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Managed, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.instances[t])
	}
	return out
}

// Len returns the number of registered types.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// Subscribe adds a lifecycle observer to every registry of this Context. obs
// first receives a Created event for each live instance.
func (c *Context) Subscribe(obs Observer) (cancel func(), err error) {
	if obs == nil {
		return nil, regerrors.NewInvalidArgument("registry.Subscribe", "nil observer")
	}
	return c.hub.subscribe(obs)
}

func isNil(m any) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
