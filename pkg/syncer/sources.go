package syncer

import (
	"fmt"
	"net/http"

	registryv0 "github.com/modelcontextprotocol/registry/pkg/api/v0"

	"github.com/remote-mcp-servers/registry-sync/pkg/identity"
	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/blockchain"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/official"
)

// AliasOfficial is the legacy name of the official registry source, kept
// for the cron trigger path and manual sync requests.
const AliasOfficial = "mcp-remotes"

// NewDefaultRegistry wires the blockchain and official registry sources
// into a Registry.
func NewDefaultRegistry(cfg *Config, store *servers.Store, opts RegistryOptions) (*Registry, error) {
	deriver, err := identity.NewDeriverWithScheme(cfg.Namespace, identity.Scheme(cfg.IDScheme))
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.UpstreamRequestTimeout}

	chainOpts := []blockchain.Option{
		blockchain.WithRateLimit(cfg.BlockchainRPS),
		blockchain.WithCanisters(blockchain.Canisters{
			Registry:     cfg.RegistryCanister,
			Orchestrator: cfg.OrchestratorCanister,
			UsageTracker: cfg.UsageTrackerCanister,
		}),
	}
	if cfg.BlockchainBaseURL != "" {
		chainOpts = append(chainOpts, blockchain.WithBaseURL(cfg.BlockchainBaseURL))
	}
	chainClient, err := blockchain.NewClient(httpClient, chainOpts...)
	if err != nil {
		return nil, fmt.Errorf("blockchain client: %w", err)
	}

	officialOpts := []official.Option{official.WithPageSize(cfg.OfficialPageSize)}
	if cfg.OfficialBaseURL != "" {
		officialOpts = append(officialOpts, official.WithBaseURL(cfg.OfficialBaseURL))
	}
	officialClient, err := official.NewClient(httpClient, officialOpts...)
	if err != nil {
		return nil, fmt.Errorf("official registry client: %w", err)
	}

	reg := NewRegistry(opts)
	reg.Register(NewPipeline[blockchain.Listing, blockchain.Entry](
		blockchain.NewSource(chainClient, deriver), store, deriver, PipelineOptions{
			Title:             "Blockchain",
			DetailConcurrency: cfg.DetailConcurrency,
			RetireAfter:       cfg.RetireAfter,
			Logger:            opts.Logger,
		}))
	reg.Register(NewPipeline[registryv0.ServerResponse, registryv0.ServerResponse](
		official.NewSource(officialClient, deriver), store, deriver, PipelineOptions{
			Title:             "MCP remotes",
			DetailConcurrency: cfg.DetailConcurrency,
			RetireAfter:       cfg.RetireAfter,
			Logger:            opts.Logger,
		}), AliasOfficial)
	return reg, nil
}
