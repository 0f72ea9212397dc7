package official

import (
	"context"

	"github.com/golang/glog"
	registryv0 "github.com/modelcontextprotocol/registry/pkg/api/v0"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

// SourceName is the short name used in routes, jobs and presence rows.
const SourceName = "official"

// Source adapts the registry client to the sync pipeline. The list
// endpoint already carries every field, so Detail is the identity.
type Source struct {
	client  *Client
	deriver *identity.Deriver
}

// NewSource creates a Source.
func NewSource(client *Client, deriver *identity.Deriver) *Source {
	return &Source{client: client, deriver: deriver}
}

func (s *Source) Name() string { return SourceName }

// Index pages through the registry and collapses versions of the same
// server.
func (s *Source) Index(ctx context.Context) ([]registryv0.ServerResponse, error) {
	all, err := s.client.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	unique := Dedupe(all)
	glog.Infof("De-duplicated %d official entries into %d servers", len(all), len(unique))
	return unique, nil
}

func (s *Source) Key(e registryv0.ServerResponse) string { return e.Server.Name }

func (s *Source) Detail(_ context.Context, e registryv0.ServerResponse) (registryv0.ServerResponse, error) {
	return e, nil
}

func (s *Source) Normalize(e registryv0.ServerResponse) (*servers.Server, error) {
	return Normalize(s.deriver, e)
}
