// Package mcptools exposes the canonical server table to MCP clients as
// read-only tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"

	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

// Tool names.
const (
	ToolListServers      = "list_servers"
	ToolSearchServers    = "search_servers"
	ToolGetServerDetails = "get_server_details"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// Options configure the tool server.
type Options struct {
	Name    string
	Version string
	// Namespaces are the meta namespaces searched for category,
	// is_official and authentication_type, in priority order.
	Namespaces []string
	Logger     *slog.Logger
}

// ServerSummary is one server as returned by the tools.
type ServerSummary struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Status             string              `json:"status"`
	Category           string              `json:"category,omitempty"`
	AuthenticationType string              `json:"authentication_type,omitempty"`
	LatestVersion      string              `json:"latest_version,omitempty"`
	Remotes            []servers.Remote    `json:"remotes"`
	Repository         *servers.Repository `json:"repository,omitempty"`
	Meta               json.RawMessage     `json:"meta,omitempty"`
	UpdatedAt          string              `json:"updated_at"`
}

// Pagination describes the page returned by list and search.
type Pagination struct {
	CurrentPage     int   `json:"currentPage"`
	ItemsPerPage    int   `json:"itemsPerPage"`
	TotalItems      int64 `json:"totalItems"`
	TotalPages      int   `json:"totalPages"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// PagedServers is the result of list and search.
type PagedServers struct {
	Data       []ServerSummary `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

type listArgs struct {
	Page               *int   `json:"page"`
	Limit              *int   `json:"limit"`
	Category           string `json:"category"`
	IsOfficial         *bool  `json:"is_official"`
	AuthenticationType string `json:"authentication_type"`
	Query              string `json:"query"`
	ID                 string `json:"id"`
}

// Server holds the MCP server and the store its tools read.
type Server struct {
	mcp    *mcp.Server
	store  *servers.Store
	opts   Options
	logger *slog.Logger
}

// NewServer builds an MCP server with the registry tools registered.
func NewServer(store *servers.Store, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "remote-mcp-servers"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    opts.Name,
			Version: opts.Version,
		}, &mcp.ServerOptions{}),
		store:  store,
		opts:   opts,
		logger: opts.Logger,
	}
	s.register()
	return s
}

// MCP returns the underlying server, e.g. to connect an in-memory transport.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

func (s *Server) register() {
	pageProps := map[string]any{
		"page": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"default":     defaultPage,
			"description": "Page number for pagination, starting from 1.",
		},
		"limit": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     maxLimit,
			"default":     defaultLimit,
			"description": "Number of items per page (max 100).",
		},
	}

	s.mcp.AddTool(&mcp.Tool{
		Name:        ToolListServers,
		Description: "Lists active remote MCP servers from the registry with pagination and optional filters. Data is read-only.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": lo.Assign(pageProps, map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Filter by server category (e.g., 'AI', 'Gaming').",
				},
				"is_official": map[string]any{
					"type":        "boolean",
					"description": "Filter by official status.",
				},
				"authentication_type": map[string]any{
					"type":        "string",
					"description": "Filter by authentication type (e.g., 'none', 'oauth').",
				},
			}),
		},
	}, s.listServers)

	s.mcp.AddTool(&mcp.Tool{
		Name:        ToolSearchServers,
		Description: "Searches active remote MCP servers by a keyword in their name or description. Results are read-only.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": lo.Assign(pageProps, map[string]any{
				"query": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "The keyword to search for in server names and descriptions.",
				},
			}),
			"required": []string{"query"},
		},
	}, s.searchServers)

	s.mcp.AddTool(&mcp.Tool{
		Name:        ToolGetServerDetails,
		Description: "Retrieves details for a specific remote MCP server by its ID. Data is read-only.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"format":      "uuid",
					"description": "The unique ID (UUID) of the server to retrieve.",
				},
			},
			"required": []string{"id"},
		},
	}, s.getServerDetails)
}

func (s *Server) listServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(req)
	if err != nil {
		return nil, err
	}
	page, limit, err := args.paging()
	if err != nil {
		return nil, err
	}

	result, err := s.page(ctx, servers.PageOptions{
		Page:               page,
		Limit:              limit,
		Category:           args.Category,
		IsOfficial:         args.IsOfficial,
		AuthenticationType: args.AuthenticationType,
		Namespaces:         s.opts.Namespaces,
	})
	if err != nil {
		s.logger.Error("list_servers failed", "error", err)
		return errorResult("Error listing servers: %v", err), nil
	}
	return jsonResult(result)
}

func (s *Server) searchServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(req)
	if err != nil {
		return nil, err
	}
	if args.Query == "" {
		return nil, errors.New("query is required")
	}
	page, limit, err := args.paging()
	if err != nil {
		return nil, err
	}

	result, err := s.page(ctx, servers.PageOptions{
		Page:       page,
		Limit:      limit,
		Query:      args.Query,
		Namespaces: s.opts.Namespaces,
	})
	if err != nil {
		s.logger.Error("search_servers failed", "error", err)
		return errorResult("Error searching servers: %v", err), nil
	}
	return jsonResult(result)
}

func (s *Server) getServerDetails(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(req)
	if err != nil {
		return nil, err
	}
	if err := uuid.Validate(args.ID); err != nil {
		return nil, fmt.Errorf("id must be a valid UUID: %w", err)
	}

	srv, err := s.store.Get(ctx, args.ID)
	if errors.Is(err, servers.ErrServerNotFound) || (err == nil && srv.Status != servers.StatusActive) {
		return textResult(fmt.Sprintf("Server with ID %s not found or not active.", args.ID)), nil
	}
	if err != nil {
		s.logger.Error("get_server_details failed", "id", args.ID, "error", err)
		return errorResult("Error fetching server details: %v", err), nil
	}
	return jsonResult(s.summarize(srv, true))
}

func (s *Server) page(ctx context.Context, opts servers.PageOptions) (*PagedServers, error) {
	rows, total, err := s.store.Page(ctx, opts)
	if err != nil {
		return nil, err
	}
	totalPages := int(math.Ceil(float64(total) / float64(opts.Limit)))
	return &PagedServers{
		Data: lo.Map(rows, func(srv servers.Server, _ int) ServerSummary {
			return s.summarize(&srv, false)
		}),
		Pagination: Pagination{
			CurrentPage:     opts.Page,
			ItemsPerPage:    opts.Limit,
			TotalItems:      total,
			TotalPages:      totalPages,
			HasNextPage:     opts.Page < totalPages,
			HasPreviousPage: opts.Page > 1,
		},
	}, nil
}

func (s *Server) summarize(srv *servers.Server, withMeta bool) ServerSummary {
	out := ServerSummary{
		ID:                 srv.ID,
		Name:               srv.Name,
		Description:        srv.Description,
		Status:             string(srv.Status),
		Category:           srv.MetaString("category", s.opts.Namespaces...),
		AuthenticationType: srv.MetaString("authentication_type", s.opts.Namespaces...),
		LatestVersion:      srv.LatestVersion,
		Remotes:            srv.RemoteList(),
		Repository:         srv.RepositoryValue(),
		UpdatedAt:          srv.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if out.Remotes == nil {
		out.Remotes = []servers.Remote{}
	}
	if withMeta {
		out.Meta = json.RawMessage(srv.Meta)
	}
	return out
}

func decodeArgs(req *mcp.CallToolRequest) (*listArgs, error) {
	var args listArgs
	if len(req.Params.Arguments) == 0 {
		return &args, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments json: %w", err)
	}
	return &args, nil
}

func (a *listArgs) paging() (page, limit int, err error) {
	page, limit = defaultPage, defaultLimit
	if a.Page != nil {
		if *a.Page < 1 {
			return 0, 0, fmt.Errorf("page must be >= 1, got %d", *a.Page)
		}
		page = *a.Page
	}
	if a.Limit != nil {
		if *a.Limit < 1 || *a.Limit > maxLimit {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d, got %d", maxLimit, *a.Limit)
		}
		limit = *a.Limit
	}
	return page, limit, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(b)}},
		StructuredContent: v,
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(format string, err error) *mcp.CallToolResult {
	res := textResult(fmt.Sprintf(format, err))
	res.IsError = true
	return res
}
