package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

var (
	errExpectedInteger = errors.New("Expected number, received string")
	errLimitRange      = fmt.Errorf("Number must be between 1 and %d", maxLimit)
	errInvalidDatetime = errors.New("Invalid datetime")
)

// MsgInvalidServerID is returned for server ids that are not UUIDs.
const MsgInvalidServerID = "Invalid server ID format. Must be a valid UUID."

// ServersAPIService implements the business logic for the servers API.
type ServersAPIService struct {
	store *servers.Store
}

// NewServersAPIService creates a new service instance.
func NewServersAPIService(store *servers.Store) *ServersAPIService {
	return &ServersAPIService{store: store}
}

// Ensure we implement the ServersAPIServicer interface.
var _ ServersAPIServicer = &ServersAPIService{}

// ListServers implements ServersAPIServicer.ListServers.
func (s *ServersAPIService) ListServers(ctx context.Context, limit int32, cursor string, search string, updatedSince *time.Time) (ImplResponse, error) {
	page, err := s.store.List(ctx, servers.ListOptions{
		Limit:        int(limit),
		Cursor:       cursor,
		Search:       search,
		UpdatedSince: updatedSince,
	})
	if err != nil {
		if errors.Is(err, servers.ErrInvalidCursor) {
			return Response(http.StatusBadRequest, ErrorBody{
				Error: fmt.Sprintf("Invalid or malformed cursor: %v", err),
			}), err
		}
		return Response(http.StatusInternalServerError, ErrorBody{
			Error:   "Failed to fetch servers",
			Details: err.Error(),
		}), err
	}

	resp := McpServerList{
		Servers: lo.Map(page.Servers, func(srv servers.Server, _ int) McpServer {
			return convertToOpenAPIModel(&srv)
		}),
		Metadata: ListMetadata{Count: len(page.Servers)},
	}
	if page.NextCursor != "" {
		resp.Metadata.NextCursor = lo.ToPtr(page.NextCursor)
	}
	return Response(http.StatusOK, resp), nil
}

// GetServer implements ServersAPIServicer.GetServer.
func (s *ServersAPIService) GetServer(ctx context.Context, serverID string) (ImplResponse, error) {
	if err := uuid.Validate(serverID); err != nil {
		return Response(http.StatusBadRequest, ErrorBody{
			Error:   MsgInvalidServerID,
			Details: map[string][]string{"server_id": {"Invalid uuid"}},
		}), err
	}

	srv, err := s.store.Get(ctx, serverID)
	if err != nil {
		if errors.Is(err, servers.ErrServerNotFound) {
			return Response(http.StatusNotFound, ErrorBody{Error: "Server not found"}), err
		}
		return Response(http.StatusInternalServerError, ErrorBody{
			Error:   "An unexpected error occurred.",
			Details: err.Error(),
		}), err
	}

	return Response(http.StatusOK, convertToOpenAPIModel(srv)), nil
}

func convertToOpenAPIModel(srv *servers.Server) McpServer {
	return McpServer{
		Id:            srv.ID,
		Name:          srv.Name,
		Description:   srv.Description,
		Status:        string(srv.Status),
		LatestVersion: srv.LatestVersion,
		WebsiteUrl:    srv.WebsiteURL,
		Repository:    rawOrNull(srv.Repository.JSON),
		Packages:      rawOrNull(srv.Packages.JSON),
		Remotes:       rawOrDefault(srv.Remotes, "[]"),
		Meta:          rawOrDefault(srv.Meta, "{}"),
		PublishedAt:   srv.PublishedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     srv.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func rawOrNull(b []byte) []byte {
	return rawOrDefault(b, "null")
}

func rawOrDefault(b []byte, fallback string) []byte {
	if len(b) == 0 {
		return []byte(fallback)
	}
	return b
}
