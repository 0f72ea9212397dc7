package openapi

import (
	"context"
	"net/http"
	"time"
)

// ServersAPIRouter defines the required methods for binding the api requests to a responses.
type ServersAPIRouter interface {
	ListServers(http.ResponseWriter, *http.Request)
	GetServer(http.ResponseWriter, *http.Request)
}

// ServersAPIServicer defines the api actions for the servers service.
type ServersAPIServicer interface {
	ListServers(ctx context.Context, limit int32, cursor string, search string, updatedSince *time.Time) (ImplResponse, error)
	GetServer(ctx context.Context, serverID string) (ImplResponse, error)
}
