package official

import (
	"encoding/json"
	"slices"
	"strings"
	"unicode"

	"github.com/golang/glog"
	registryv0 "github.com/modelcontextprotocol/registry/pkg/api/v0"
	"github.com/modelcontextprotocol/registry/pkg/model"
	"github.com/samber/lo"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
)

// MetaNamespace is the meta key owned by this source.
const MetaNamespace = "com.remote-mcp-servers.metadata"

const logoBaseURL = "https://remote-mcp-servers.com/logos/"

// Metadata is the source-specific block stored under MetaNamespace.
type Metadata struct {
	HumanFriendlyName         string  `json:"human_friendly_name"`
	IconURL                   string  `json:"icon_url"`
	IsOfficial                bool    `json:"is_official"`
	Category                  string  `json:"category"`
	AuthenticationType        string  `json:"authentication_type"`
	DynamicClientRegistration bool    `json:"dynamic_client_registration"`
	AISummary                 *string `json:"ai_summary"`
	Provider                  *string `json:"provider"`
	MaintainerDomain          *string `json:"maintainer_domain"`
}

// Normalize maps one registry entry onto a canonical record. It returns nil
// for entries without a name or without remotes.
func Normalize(d *identity.Deriver, entry registryv0.ServerResponse) (*servers.Server, error) {
	s := entry.Server
	if s.Name == "" {
		glog.Infof("Skipping official server with no name")
		return nil, nil
	}
	remotes := lo.Filter(s.Remotes, func(t model.Transport, _ int) bool { return t.URL != "" })
	if len(remotes) == 0 {
		glog.V(1).Infof("Skipping %s: no remotes", s.Name)
		return nil, nil
	}

	status := servers.StatusDeprecated
	if entry.Meta.Official != nil && entry.Meta.Official.Status == model.StatusActive {
		status = servers.StatusActive
	}

	srv := &servers.Server{
		ID:            d.Derive(s.Name),
		Name:          s.Name,
		Description:   s.Description,
		Status:        status,
		LatestVersion: s.Version,
		WebsiteURL:    lo.EmptyableToPtr(s.WebsiteURL),
	}
	if err := srv.SetRepository(servers.KnownRepository(s.Repository.URL)); err != nil {
		return nil, err
	}
	err := srv.SetRemotes(lo.Map(remotes, func(t model.Transport, _ int) servers.Remote {
		kind := t.Type
		if kind == "" {
			kind = servers.InferTransport(t.URL)
		}
		return servers.Remote{URL: t.URL, Type: kind}
	}))
	if err != nil {
		return nil, err
	}
	if len(s.Packages) > 0 {
		b, err := json.Marshal(s.Packages)
		if err != nil {
			return nil, err
		}
		srv.Packages = servers.NullJSON{JSON: b}
	}

	provider, short, hasProvider := strings.Cut(s.Name, "/")
	if !hasProvider {
		provider, short = "", s.Name
	}
	meta := Metadata{
		HumanFriendlyName:  HumanFriendlyName(short),
		IconURL:            logoBaseURL + strings.ReplaceAll(s.Name, "/", "-") + ".png",
		IsOfficial:         true,
		Category:           "Uncategorized",
		AuthenticationType: "Unknown",
		Provider:           lo.EmptyableToPtr(provider),
		MaintainerDomain:   lo.EmptyableToPtr(MaintainerDomain(provider)),
	}
	if err := srv.SetMeta(MetaNamespace, meta); err != nil {
		return nil, err
	}
	return srv, nil
}

// HumanFriendlyName turns "weather-server_v2" into "Weather Server V2".
func HumanFriendlyName(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

// MaintainerDomain turns a reverse-DNS provider such as "io.github.acme"
// into "acme.github.io". Values without a dot are returned unchanged.
func MaintainerDomain(provider string) string {
	if !strings.Contains(provider, ".") {
		return provider
	}
	parts := strings.Split(provider, ".")
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}
