// Package inspect exposes a read-only HTTP view of a registry Context: its
// managed types, keyed registries, resolved conversions and constructors.
//
//	mux.Mount("/_registry", inspect.New(c))
//
// Every route answers JSON, or YAML with ?format=yaml.
package inspect

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/km-arc/go-registry/framework/registry"
)

// Handler serves the inspection routes of one Context.
type Handler struct {
	ctx *registry.Context
	mux chi.Router
}

// New creates the handler for c.
func New(c *registry.Context) *Handler {
	h := &Handler{ctx: c, mux: chi.NewRouter()}
	h.mux.Use(middleware.Recoverer)
	h.mux.Use(h.logRequests)

	h.mux.Get("/types", h.types)
	h.mux.Get("/types/{name}", h.typeByName)
	h.mux.Get("/keyed", h.keyed)
	h.mux.Get("/converters", h.converters)
	h.mux.Get("/constructors", h.constructors)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.ctx.Logger().Debug("inspect",
			zap.String("path", r.URL.Path), zap.Int("status", ww.Status()))
	})
}

// ── Views ────────────────────────────────────────────────────────────────────

type typeView struct {
	Type    string `json:"type" yaml:"type"`
	Hash    string `json:"hash" yaml:"hash"`
	Removed bool   `json:"removed" yaml:"removed"`
}

type keyedView struct {
	Type    string `json:"type" yaml:"type"`
	KeyType string `json:"key_type" yaml:"key_type"`
	Len     int    `json:"len" yaml:"len"`
}

type pairView struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

type convertersView struct {
	Searches int64      `json:"searches" yaml:"searches"`
	Pairs    []pairView `json:"pairs" yaml:"pairs"`
}

type constructorsView struct {
	Synthesized int `json:"synthesized" yaml:"synthesized"`
	Conventions int `json:"conventions" yaml:"conventions"`
}

func viewOf(m registry.Managed) typeView {
	return typeView{
		Type:    registry.TypeKey(reflect.TypeOf(m)),
		Hash:    fmt.Sprintf("%016x", registry.IdentityHash(m)),
		Removed: m.IsRemoved(),
	}
}

// ── Routes ───────────────────────────────────────────────────────────────────

func (h *Handler) types(w http.ResponseWriter, r *http.Request) {
	instances := h.ctx.Instances()
	out := make([]typeView, 0, len(instances))
	for _, m := range instances {
		out = append(out, viewOf(m))
	}
	newResponse(w, r).Success(out)
}

func (h *Handler) typeByName(w http.ResponseWriter, r *http.Request) {
	res := newResponse(w, r)
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	for _, m := range h.ctx.Instances() {
		if registry.TypeKey(reflect.TypeOf(m)) == name {
			res.Success(viewOf(m))
			return
		}
	}
	res.NotFound(fmt.Sprintf("no instance of %s", name))
}

func (h *Handler) keyed(w http.ResponseWriter, r *http.Request) {
	res := newResponse(w, r)
	idx, err := registry.Controllers(h.ctx)
	if err != nil {
		res.Error(http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]keyedView, 0, idx.Len())
	for _, t := range idx.Keys() {
		ctrl, ok := idx.Lookup(t)
		if !ok {
			continue
		}
		out = append(out, keyedView{
			Type:    registry.TypeKey(ctrl.ManagedType()),
			KeyType: registry.TypeKey(ctrl.KeyType()),
			Len:     ctrl.Len(),
		})
	}
	slices.SortFunc(out, func(a, b keyedView) int { return strings.Compare(a.Type, b.Type) })
	res.Success(out)
}

func (h *Handler) converters(w http.ResponseWriter, r *http.Request) {
	conv := h.ctx.Converter()
	pairs := conv.Cached()
	out := convertersView{Searches: conv.Searches(), Pairs: make([]pairView, 0, len(pairs))}
	for _, p := range pairs {
		out.Pairs = append(out.Pairs, pairView{From: registry.TypeKey(p.From), To: registry.TypeKey(p.To)})
	}
	slices.SortFunc(out.Pairs, func(a, b pairView) int {
		if c := strings.Compare(a.From, b.From); c != 0 {
			return c
		}
		return strings.Compare(a.To, b.To)
	})
	newResponse(w, r).Success(out)
}

func (h *Handler) constructors(w http.ResponseWriter, r *http.Request) {
	s := h.ctx.Constructors()
	newResponse(w, r).Success(constructorsView{Synthesized: s.Len(), Conventions: s.Conventions()})
}
