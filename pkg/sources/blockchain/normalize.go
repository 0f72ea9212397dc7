package blockchain

import (
	"github.com/golang/glog"
	"github.com/samber/lo"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

// MetaNamespace is the meta key owned by this source.
const MetaNamespace = "org.prometheusprotocol.metadata"

// Metadata is the source-specific block stored under MetaNamespace.
type Metadata struct {
	HumanFriendlyName         *string `json:"human_friendly_name"`
	IconURL                   *string `json:"icon_url"`
	IsOfficial                bool    `json:"is_official"`
	Category                  *string `json:"category"`
	AuthenticationType        string  `json:"authentication_type"`
	DynamicClientRegistration bool    `json:"dynamic_client_registration"`
	AISummary                 *string `json:"ai_summary"`
	Publisher                 *string `json:"publisher"`
	WasmID                    *string `json:"wasm_id"`
	SecurityTier              *string `json:"security_tier"`
	BannerURL                 *string `json:"banner_url"`
}

// Normalize maps a listing and its details onto a canonical record. It
// returns nil when the listing has no namespace.
func Normalize(d *identity.Deriver, e Entry) (*servers.Server, error) {
	if e.Namespace == "" {
		glog.Infof("Skipping server with no namespace: %s", lo.CoalesceOrEmpty(e.Name, "unknown"))
		return nil, nil
	}

	var latest Version
	if e.Details != nil && e.Details.LatestVersion != nil {
		latest = *e.Details.LatestVersion
	}

	srv := &servers.Server{
		ID:            d.Derive(e.Namespace),
		Name:          e.Namespace,
		Description:   e.Description,
		Status:        statusOf(latest.Status),
		LatestVersion: latest.VersionString,
	}

	var repo *servers.Repository
	if latest.BuildInfo != nil {
		repo = servers.KnownRepository(latest.BuildInfo.RepoURL)
	}
	if err := srv.SetRepository(repo); err != nil {
		return nil, err
	}
	if err := srv.SetRemotes(remotesOf(latest.ServerURL)); err != nil {
		return nil, err
	}

	meta := Metadata{
		HumanFriendlyName:  lo.EmptyableToPtr(e.Name),
		IconURL:            lo.EmptyableToPtr(e.IconURL),
		Category:           lo.EmptyableToPtr(e.Category),
		AuthenticationType: "Unknown",
		Publisher:          lo.EmptyableToPtr(e.Publisher),
		WasmID:             lo.EmptyableToPtr(latest.WasmID),
		SecurityTier:       lo.EmptyableToPtr(latest.SecurityTier),
		BannerURL:          lo.EmptyableToPtr(e.BannerURL),
	}
	if err := srv.SetMeta(MetaNamespace, meta); err != nil {
		return nil, err
	}
	return srv, nil
}

func statusOf(s string) servers.Status {
	if s == StatusVerified {
		return servers.StatusActive
	}
	return servers.StatusDeprecated
}

func remotesOf(u string) []servers.Remote {
	if u == "" {
		return []servers.Remote{}
	}
	return []servers.Remote{{URL: u, Type: servers.InferTransport(u)}}
}
