package openapi

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultLimit int32 = 20
	maxLimit     int32 = 100
)

// ServersAPIController binds http requests to the servers service and
// writes the service results to the http response.
type ServersAPIController struct {
	service      ServersAPIServicer
	errorHandler ErrorHandler
}

// ServersAPIOption for how the controller is set up.
type ServersAPIOption func(*ServersAPIController)

// WithServersAPIErrorHandler inject ErrorHandler into controller.
func WithServersAPIErrorHandler(h ErrorHandler) ServersAPIOption {
	return func(c *ServersAPIController) {
		c.errorHandler = h
	}
}

// NewServersAPIController creates a servers api controller.
func NewServersAPIController(s ServersAPIServicer, opts ...ServersAPIOption) *ServersAPIController {
	controller := &ServersAPIController{
		service:      s,
		errorHandler: DefaultErrorHandler,
	}

	for _, opt := range opts {
		opt(controller)
	}

	return controller
}

// Routes returns all the api routes for the ServersAPIController.
func (c *ServersAPIController) Routes() Routes {
	routes := Routes{}
	for _, route := range c.OrderedRoutes() {
		routes[route.Name] = route
	}
	return routes
}

// OrderedRoutes returns all the api routes in a deterministic order.
func (c *ServersAPIController) OrderedRoutes() []Route {
	return []Route{
		{
			"ListServers",
			http.MethodGet,
			"/api/v0/servers",
			c.ListServers,
		},
		{
			"GetServer",
			http.MethodGet,
			"/api/v0/servers/{server_id}",
			c.GetServer,
		},
	}
}

// ListServers - List servers, newest first.
func (c *ServersAPIController) ListServers(w http.ResponseWriter, r *http.Request) {
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		c.errorHandler(w, r, &ParsingError{Err: err}, nil)
		return
	}

	limitParam, err := queryInt32(query, "limit", defaultLimit)
	if err != nil {
		c.errorHandler(w, r, &ParsingError{Param: "limit", Err: errExpectedInteger}, nil)
		return
	}
	if limitParam < 1 || limitParam > maxLimit {
		c.errorHandler(w, r, &ParsingError{Param: "limit", Err: errLimitRange}, nil)
		return
	}

	var updatedSinceParam *time.Time
	if query.Has("updated_since") {
		parsed, err := time.Parse(time.RFC3339, query.Get("updated_since"))
		if err != nil {
			c.errorHandler(w, r, &ParsingError{Param: "updated_since", Err: errInvalidDatetime}, nil)
			return
		}
		updatedSinceParam = &parsed
	}

	result, err := c.service.ListServers(r.Context(), limitParam, query.Get("cursor"), query.Get("search"), updatedSinceParam)
	if err != nil {
		c.errorHandler(w, r, err, &result)
		return
	}
	_ = EncodeJSONResponse(w, result.Code, result.Body)
}

// GetServer - Get a server by id.
func (c *ServersAPIController) GetServer(w http.ResponseWriter, r *http.Request) {
	serverIDParam := chi.URLParam(r, "server_id")
	if serverIDParam == "" {
		c.errorHandler(w, r, &RequiredError{"server_id"}, nil)
		return
	}

	result, err := c.service.GetServer(r.Context(), serverIDParam)
	if err != nil {
		c.errorHandler(w, r, err, &result)
		return
	}
	_ = EncodeJSONResponse(w, result.Code, result.Body)
}
