// Package router composes feature controllers into mountable chi routers.
//
// A mount owns one segment of the API surface (for example the users
// resource family). It does not know which routes exist: it creates an empty
// router and hands it to a registration procedure, usually a ControllerList,
// which attaches the routes of each controller.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Controller attaches its routes to the router it receives.
type Controller interface {
	Register(r chi.Router)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(r chi.Router)

func (f ControllerFunc) Register(r chi.Router) { f(r) }

// ControllerList registers each controller in order.
type ControllerList []Controller

func (l ControllerList) Register(r chi.Router) {
	RegisterControllerList(r, l...)
}

// RegisterControllerList attaches every controller to r in order. A nil
// controller is a wiring bug and panics.
func RegisterControllerList(r chi.Router, controllers ...Controller) {
	for _, c := range controllers {
		if c == nil {
			panic("router: nil controller in controller list")
		}
		c.Register(r)
	}
}

// Build creates an empty router, invokes c exactly once to populate it and
// returns it. A controller that registers nothing yields a valid router that
// answers 404 to every request.
func Build(c Controller) chi.Router {
	if c == nil {
		panic("router: Build called with nil controller")
	}
	r := chi.NewRouter()
	c.Register(r)
	return r
}

// Patterns lists "METHOD /pattern" for every route on h, in walk order.
// Handlers that are not chi routers report no routes.
func Patterns(h http.Handler) []string {
	routes, ok := h.(chi.Routes)
	if !ok {
		return nil
	}
	var out []string
	_ = chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		out = append(out, method+" "+route)
		return nil
	})
	return out
}
