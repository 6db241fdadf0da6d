// Package chains provides the static directory of supported chains.
package chains

import (
	"github.com/orbit-yield/internal/config"
	"github.com/orbit-yield/internal/types"
)

// ChainInfo describes a supported chain. Immutable, process-wide configuration
// loaded once.
type ChainInfo struct {
	ID             types.ChainID `json:"id"`
	Name           string        `json:"name"`
	NativeSymbol   string        `json:"nativeSymbol"`
	NativeDecimals int           `json:"nativeDecimals"`
	RPCURL         string        `json:"-"`
	ExplorerURL    string        `json:"explorerUrl"`
	Testnet        bool          `json:"testnet"`
}

// Registry is the immutable chain directory. Safe for concurrent reads.
type Registry struct {
	chains map[types.ChainID]ChainInfo
	order  []types.ChainID
}

// defaults carries the compiled-in chain table; config supplies RPC endpoints
// and may narrow the enabled set.
var defaults = []ChainInfo{
	{ID: types.ChainEthereum, Name: "Ethereum", NativeSymbol: "ETH", NativeDecimals: 18, ExplorerURL: "https://etherscan.io"},
	{ID: types.ChainPolygon, Name: "Polygon", NativeSymbol: "MATIC", NativeDecimals: 18, ExplorerURL: "https://polygonscan.com"},
	{ID: types.ChainArbitrum, Name: "Arbitrum", NativeSymbol: "ETH", NativeDecimals: 18, ExplorerURL: "https://arbiscan.io"},
	{ID: types.ChainOptimism, Name: "Optimism", NativeSymbol: "ETH", NativeDecimals: 18, ExplorerURL: "https://optimistic.etherscan.io"},
	{ID: types.ChainBase, Name: "Base", NativeSymbol: "ETH", NativeDecimals: 18, ExplorerURL: "https://basescan.org"},
	{ID: types.ChainAvalanche, Name: "Avalanche", NativeSymbol: "AVAX", NativeDecimals: 18, ExplorerURL: "https://snowtrace.io"},
	{ID: types.ChainMoonbeam, Name: "Moonbeam", NativeSymbol: "GLMR", NativeDecimals: 18, ExplorerURL: "https://moonbeam.moonscan.io"},
}

// NewRegistry builds the registry from the enabled chains in config. Chains
// without a compiled-in entry are skipped; config RPC and explorer values
// override the defaults.
func NewRegistry(cfg *config.ChainsConfig) *Registry {
	byID := make(map[types.ChainID]ChainInfo, len(defaults))
	for _, info := range defaults {
		byID[info.ID] = info
	}

	r := &Registry{chains: make(map[types.ChainID]ChainInfo)}
	for _, name := range cfg.Enabled {
		id := types.ChainID(name)
		info, ok := byID[id]
		if !ok {
			continue
		}
		if chainCfg, ok := cfg.Chains[name]; ok {
			info.RPCURL = chainCfg.RPCPrimary
			if chainCfg.ExplorerURL != "" {
				info.ExplorerURL = chainCfg.ExplorerURL
			}
			info.Testnet = chainCfg.Testnet
		}
		r.chains[id] = info
		r.order = append(r.order, id)
	}
	return r
}

// NewRegistryFromChains builds a registry directly from chain infos, preserving
// order. Used by tests and fixed deployments.
func NewRegistryFromChains(infos []ChainInfo) *Registry {
	r := &Registry{chains: make(map[types.ChainID]ChainInfo, len(infos))}
	for _, info := range infos {
		if _, exists := r.chains[info.ID]; exists {
			continue
		}
		r.chains[info.ID] = info
		r.order = append(r.order, info.ID)
	}
	return r
}

// Get returns the chain info for an id
func (r *Registry) Get(id types.ChainID) (ChainInfo, bool) {
	info, ok := r.chains[id]
	return info, ok
}

// Has reports whether the chain id is registered
func (r *Registry) Has(id types.ChainID) bool {
	_, ok := r.chains[id]
	return ok
}

// List returns all registered chains in registration order
func (r *Registry) List() []ChainInfo {
	out := make([]ChainInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chains[id])
	}
	return out
}

// IDs returns the registered chain ids in registration order
func (r *Registry) IDs() []types.ChainID {
	out := make([]types.ChainID, len(r.order))
	copy(out, r.order)
	return out
}
