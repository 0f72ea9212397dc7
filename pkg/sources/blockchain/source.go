package blockchain

import (
	"context"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

// SourceName is the short name used in routes, jobs and presence rows.
const SourceName = "blockchain"

// Source adapts the gateway client to the sync pipeline.
type Source struct {
	client  *Client
	deriver *identity.Deriver
}

// NewSource creates a Source.
func NewSource(client *Client, deriver *identity.Deriver) *Source {
	return &Source{client: client, deriver: deriver}
}

func (s *Source) Name() string { return SourceName }

// Index returns every listing on the registry.
func (s *Source) Index(ctx context.Context) ([]Listing, error) {
	return s.client.Listings(ctx)
}

// Key returns the listing's natural key.
func (s *Source) Key(l Listing) string { return l.Namespace }

// Detail fetches the detail record of l. Listings without a namespace are
// passed through so Normalize can skip them.
func (s *Source) Detail(ctx context.Context, l Listing) (Entry, error) {
	if l.Namespace == "" {
		return Entry{Listing: l}, nil
	}
	details, err := s.client.AppDetails(ctx, l.Namespace)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Listing: l, Details: details}, nil
}

func (s *Source) Normalize(e Entry) (*servers.Server, error) {
	return Normalize(s.deriver, e)
}
