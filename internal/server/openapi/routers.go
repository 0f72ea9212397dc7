package openapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route defines the parameters for an api endpoint.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Routes is a map of defined api endpoints.
type Routes map[string]Route

// Router defines the required methods for retrieving api routes.
type Router interface {
	Routes() Routes
	OrderedRoutes() []Route
}

// Mount registers the routes of every router on r, optionally behind
// middlewares.
func Mount(r chi.Router, middlewares []func(http.Handler) http.Handler, routers ...Router) {
	group := r.With(middlewares...)
	for _, api := range routers {
		for _, route := range api.OrderedRoutes() {
			group.Method(route.Method, route.Pattern, route.HandlerFunc)
		}
	}
}
