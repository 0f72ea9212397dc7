package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

func entry(namespace, status, serverURL, repoURL string) Entry {
	return Entry{
		Listing: Listing{
			Namespace:   namespace,
			Name:        "Weather",
			Description: "forecasts",
			Category:    "Utilities",
			Publisher:   "acme",
		},
		Details: &AppDetails{LatestVersion: &Version{
			Status:        status,
			VersionString: "0.3.1",
			WasmID:        "wasm-1",
			SecurityTier:  "Gold",
			ServerURL:     serverURL,
			BuildInfo:     &BuildInfo{RepoURL: repoURL},
		}},
	}
}

func TestNormalize(t *testing.T) {
	d := identity.MustDeriver(identity.DefaultNamespace)

	srv, err := Normalize(d, entry("acme/weather", "Verified", "https://weather.example.com/mcp", "https://github.com/acme/weather"))
	require.NoError(t, err)
	require.NotNil(t, srv)

	assert.Equal(t, d.Derive("acme/weather"), srv.ID)
	assert.Equal(t, "acme/weather", srv.Name)
	assert.Equal(t, "forecasts", srv.Description)
	assert.Equal(t, servers.StatusActive, srv.Status)
	assert.Equal(t, "0.3.1", srv.LatestVersion)
	assert.Nil(t, srv.WebsiteURL)
	assert.True(t, srv.Packages.IsNull())
	assert.Equal(t, &servers.Repository{URL: "https://github.com/acme/weather", Source: "github"}, srv.RepositoryValue())
	assert.Equal(t, []servers.Remote{{URL: "https://weather.example.com/mcp", Type: servers.TransportStreamableHTTP}}, srv.RemoteList())

	var meta map[string]any
	require.True(t, srv.MetaNamespace(MetaNamespace, &meta))
	assert.Equal(t, "Weather", meta["human_friendly_name"])
	assert.Equal(t, false, meta["is_official"])
	assert.Equal(t, "Unknown", meta["authentication_type"])
	assert.Equal(t, "acme", meta["publisher"])
	assert.Equal(t, "wasm-1", meta["wasm_id"])
	assert.Equal(t, "Gold", meta["security_tier"])
	assert.Contains(t, meta, "ai_summary")
	assert.Nil(t, meta["ai_summary"])
}

func TestNormalize_StatusMapping(t *testing.T) {
	d := identity.MustDeriver(identity.DefaultNamespace)
	tests := []struct {
		status string
		want   servers.Status
	}{
		{status: "Verified", want: servers.StatusActive},
		{status: "Pending", want: servers.StatusDeprecated},
		{status: "Rejected", want: servers.StatusDeprecated},
		{status: "verified", want: servers.StatusDeprecated},
		{status: "", want: servers.StatusDeprecated},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv, err := Normalize(d, entry("a/b", tt.status, "", ""))
			require.NoError(t, err)
			assert.Equal(t, tt.want, srv.Status)
		})
	}
}

func TestNormalize_SkipsMissingNamespace(t *testing.T) {
	srv, err := Normalize(identity.MustDeriver(identity.DefaultNamespace), entry("", "Verified", "", ""))
	require.NoError(t, err)
	assert.Nil(t, srv)
}

func TestNormalize_RemotesAndRepository(t *testing.T) {
	d := identity.MustDeriver(identity.DefaultNamespace)

	srv, err := Normalize(d, entry("a/sse", "Verified", "https://host.example.com/sse", "https://gitlab.com/a/sse"))
	require.NoError(t, err)
	assert.Equal(t, servers.TransportSSE, srv.RemoteList()[0].Type)
	assert.Nil(t, srv.RepositoryValue(), "non-github repositories are dropped")

	srv, err = Normalize(d, entry("a/none", "Verified", "", ""))
	require.NoError(t, err)
	assert.Empty(t, srv.RemoteList())
	assert.JSONEq(t, `[]`, string(srv.Remotes))
}

func TestNormalize_EmptyDetails(t *testing.T) {
	srv, err := Normalize(identity.MustDeriver(identity.DefaultNamespace), Entry{Listing: Listing{Namespace: "bare/app"}})
	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.Equal(t, servers.StatusDeprecated, srv.Status)

	var meta map[string]any
	require.True(t, srv.MetaNamespace(MetaNamespace, &meta))
	assert.Nil(t, meta["wasm_id"])
	assert.Nil(t, meta["icon_url"])
}
