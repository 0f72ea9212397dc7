// Package servers holds the canonical remote MCP server record and the gorm
// store every sync source writes into and every read surface queries.
package servers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Status is the normalized lifecycle state of a server.
type Status string

const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// Transport types inferred for remotes.
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Repository is the source-code location of a server. Source is the
// recognized hosting platform tag, e.g. "github".
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Remote is one network endpoint of a server.
type Remote struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// KnownRepository returns the repository for url when it is hosted on a
// recognized platform, and nil otherwise.
func KnownRepository(url string) *Repository {
	if url == "" || !strings.Contains(url, "github.com") {
		return nil
	}
	return &Repository{URL: url, Source: "github"}
}

// InferTransport guesses the transport of a remote from its URL.
func InferTransport(url string) string {
	if strings.Contains(url, "sse") {
		return TransportSSE
	}
	return TransportStreamableHTTP
}

// NullJSON is a datatypes.JSON column that maps SQL NULL to an empty value
// instead of failing the scan.
type NullJSON struct {
	datatypes.JSON
}

// Scan implements sql.Scanner.
func (j *NullJSON) Scan(value any) error {
	if value == nil {
		j.JSON = nil
		return nil
	}
	return j.JSON.Scan(value)
}

// IsNull reports whether the column holds no value.
func (j NullJSON) IsNull() bool {
	return len(j.JSON) == 0 || string(j.JSON) == "null"
}

// Server is the canonical record, one row per derived id.
type Server struct {
	ID            string         `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	Name          string         `gorm:"column:name;not null;index:idx_mcp_servers_name" json:"name"`
	Description   string         `gorm:"column:description" json:"description"`
	Status        Status         `gorm:"column:status;type:varchar(16);not null;index:idx_mcp_servers_status" json:"status"`
	LatestVersion string         `gorm:"column:latest_version" json:"latest_version"`
	WebsiteURL    *string        `gorm:"column:website_url" json:"website_url"`
	Repository    NullJSON       `gorm:"column:repository" json:"repository"`
	Packages      NullJSON       `gorm:"column:packages" json:"packages"`
	Remotes       datatypes.JSON `gorm:"column:remotes;not null" json:"remotes"`
	Meta          datatypes.JSON `gorm:"column:meta;not null" json:"meta"`
	PublishedAt   time.Time      `gorm:"column:published_at;not null" json:"published_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false;index:idx_mcp_servers_updated" json:"updated_at"`
}

// TableName returns the GORM table name.
func (Server) TableName() string { return "mcp_servers_v1" }

// RepositoryValue decodes the repository column. It returns nil when unset.
func (s *Server) RepositoryValue() *Repository {
	if s.Repository.IsNull() {
		return nil
	}
	var repo Repository
	if err := json.Unmarshal(s.Repository.JSON, &repo); err != nil {
		return nil
	}
	return &repo
}

// RemoteList decodes the remotes column.
func (s *Server) RemoteList() []Remote {
	var remotes []Remote
	if len(s.Remotes) == 0 {
		return remotes
	}
	_ = json.Unmarshal(s.Remotes, &remotes)
	return remotes
}

// MetaNamespace decodes the meta object stored under namespace into out.
// It returns false when the namespace is absent.
func (s *Server) MetaNamespace(namespace string, out any) bool {
	entries, err := decodeMeta(s.Meta)
	if err != nil {
		return false
	}
	raw, ok := entries[namespace]
	if !ok || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// MetaString returns the first non-empty string value of field found in
// the given namespaces, in order.
func (s *Server) MetaString(field string, namespaces ...string) string {
	entries, err := decodeMeta(s.Meta)
	if err != nil {
		return ""
	}
	for _, ns := range namespaces {
		var block map[string]any
		if raw, ok := entries[ns]; !ok || json.Unmarshal(raw, &block) != nil {
			continue
		}
		if v, ok := block[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// SetRepository encodes repo into the repository column; nil stores NULL.
func (s *Server) SetRepository(repo *Repository) error {
	if repo == nil {
		s.Repository = NullJSON{}
		return nil
	}
	b, err := json.Marshal(repo)
	if err != nil {
		return fmt.Errorf("encode repository: %w", err)
	}
	s.Repository = NullJSON{JSON: b}
	return nil
}

// SetRemotes encodes remotes; a nil slice is stored as an empty array.
func (s *Server) SetRemotes(remotes []Remote) error {
	if remotes == nil {
		remotes = []Remote{}
	}
	b, err := json.Marshal(remotes)
	if err != nil {
		return fmt.Errorf("encode remotes: %w", err)
	}
	s.Remotes = b
	return nil
}

// SetMeta stores value as the only meta namespace of the record.
func (s *Server) SetMeta(namespace string, value any) error {
	b, err := json.Marshal(map[string]any{namespace: value})
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", namespace, err)
	}
	s.Meta = b
	return nil
}

func decodeMeta(raw datatypes.JSON) (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}
	if len(raw) == 0 || string(raw) == "null" {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Presence tracks, per source, when a server was last observed in a
// successful sync and how many successful syncs have missed it since.
type Presence struct {
	ServerID    string    `gorm:"primaryKey;column:server_id;type:varchar(36)"`
	Source      string    `gorm:"primaryKey;column:source;type:varchar(64)"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
	MissedSyncs int       `gorm:"column:missed_syncs;not null"`
}

// TableName returns the GORM table name.
func (Presence) TableName() string { return "sync_source_presence" }
