package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route describes one endpoint before it is attached to a router.
type Route struct {
	Method      string
	Pattern     string
	Handler     http.HandlerFunc
	Middlewares []func(http.Handler) http.Handler
}

// Routes collects route descriptors and attaches them when registered. It is
// the declarative alternative to writing a Register method by hand.
//
//	routes := router.NewRoutes()
//	routes.Get("/", h.list)
//	routes.With(auth.RequireRole("admin", log)).Post("/{id}/approve", h.approve)
type Routes struct {
	table *[]Route
	with  []func(http.Handler) http.Handler
}

func NewRoutes() *Routes {
	return &Routes{table: new([]Route)}
}

// With returns a view that adds mws to every route added through it. Routes
// added through the view land in the same table; the receiver is unchanged.
func (rs *Routes) With(mws ...func(http.Handler) http.Handler) *Routes {
	with := make([]func(http.Handler) http.Handler, 0, len(rs.with)+len(mws))
	with = append(with, rs.with...)
	with = append(with, mws...)
	return &Routes{table: rs.table, with: with}
}

func (rs *Routes) Handle(method, pattern string, h http.HandlerFunc) *Routes {
	*rs.table = append(*rs.table, Route{
		Method:      method,
		Pattern:     pattern,
		Handler:     h,
		Middlewares: append([]func(http.Handler) http.Handler(nil), rs.with...),
	})
	return rs
}

func (rs *Routes) Get(pattern string, h http.HandlerFunc) *Routes {
	return rs.Handle(http.MethodGet, pattern, h)
}

func (rs *Routes) Post(pattern string, h http.HandlerFunc) *Routes {
	return rs.Handle(http.MethodPost, pattern, h)
}

func (rs *Routes) Patch(pattern string, h http.HandlerFunc) *Routes {
	return rs.Handle(http.MethodPatch, pattern, h)
}

func (rs *Routes) Delete(pattern string, h http.HandlerFunc) *Routes {
	return rs.Handle(http.MethodDelete, pattern, h)
}

// List returns a copy of the collected descriptors in insertion order.
func (rs *Routes) List() []Route {
	return append([]Route(nil), *rs.table...)
}

// Register attaches the collected routes to r.
func (rs *Routes) Register(r chi.Router) {
	for _, route := range rs.List() {
		if len(route.Middlewares) > 0 {
			r.With(route.Middlewares...).Method(route.Method, route.Pattern, route.Handler)
			continue
		}
		r.Method(route.Method, route.Pattern, route.Handler)
	}
}
