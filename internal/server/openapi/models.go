package openapi

import "encoding/json"

// McpServer is the wire form of a canonical server record.
type McpServer struct {
	Id            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	LatestVersion string          `json:"latest_version"`
	WebsiteUrl    *string         `json:"website_url"`
	Repository    json.RawMessage `json:"repository"`
	Packages      json.RawMessage `json:"packages"`
	Remotes       json.RawMessage `json:"remotes"`
	Meta          json.RawMessage `json:"meta"`
	PublishedAt   string          `json:"published_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// ListMetadata carries the page size and the cursor of the next page.
type ListMetadata struct {
	Count      int     `json:"count"`
	NextCursor *string `json:"next_cursor"`
}

// McpServerList is one page of servers.
type McpServerList struct {
	Servers  []McpServer  `json:"servers"`
	Metadata ListMetadata `json:"metadata"`
}

// ErrorBody is the error envelope of the read API.
type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
