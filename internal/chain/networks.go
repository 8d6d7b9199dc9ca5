package chain

import (
	"sort"
	"strconv"
)

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Params describes a known EVM network.
type Params struct {
	ChainID     uint64
	Symbol      string // ETH, BSC, POLYGON, etc.
	Name        string
	NativeToken string
	Network     Network
}

// networks holds all known EVM networks indexed by chain ID.
var networks = make(map[uint64]*Params)

// RegisterNetwork adds network params to the table.
func RegisterNetwork(params *Params) {
	networks[params.ChainID] = params
}

// LookupNetwork returns the params for a chain ID.
func LookupNetwork(chainID uint64) (*Params, bool) {
	p, ok := networks[chainID]
	return p, ok
}

// NetworkName returns a display name for a chain ID, known or not.
func NetworkName(chainID uint64) string {
	if p, ok := networks[chainID]; ok {
		return p.Name
	}
	return "chain-" + strconv.FormatUint(chainID, 10)
}

// ListNetworks returns the known chain IDs for a network, ascending.
func ListNetworks(network Network) []uint64 {
	var ids []uint64
	for id, p := range networks {
		if p.Network == network {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func init() {
	// ==========================================================================
	// Mainnets
	// ==========================================================================

	RegisterNetwork(&Params{ChainID: 1, Symbol: "ETH", Name: "Ethereum", NativeToken: "ETH", Network: Mainnet})
	RegisterNetwork(&Params{ChainID: 10, Symbol: "OPTIMISM", Name: "Optimism", NativeToken: "ETH", Network: Mainnet})
	RegisterNetwork(&Params{ChainID: 56, Symbol: "BSC", Name: "BNB Smart Chain", NativeToken: "BNB", Network: Mainnet})
	RegisterNetwork(&Params{ChainID: 137, Symbol: "POLYGON", Name: "Polygon", NativeToken: "POL", Network: Mainnet})
	RegisterNetwork(&Params{ChainID: 8453, Symbol: "BASE", Name: "Base", NativeToken: "ETH", Network: Mainnet})
	RegisterNetwork(&Params{ChainID: 42161, Symbol: "ARBITRUM", Name: "Arbitrum One", NativeToken: "ETH", Network: Mainnet})
	RegisterNetwork(&Params{ChainID: 43114, Symbol: "AVAX", Name: "Avalanche C-Chain", NativeToken: "AVAX", Network: Mainnet})

	// ==========================================================================
	// Testnets
	// ==========================================================================

	RegisterNetwork(&Params{ChainID: 97, Symbol: "BSC", Name: "BNB Smart Chain Testnet", NativeToken: "BNB", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 31337, Symbol: "LOCAL", Name: "Local Devnet", NativeToken: "ETH", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 43113, Symbol: "AVAX", Name: "Avalanche Fuji", NativeToken: "AVAX", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 80002, Symbol: "POLYGON", Name: "Polygon Amoy", NativeToken: "POL", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 84532, Symbol: "BASE", Name: "Base Sepolia", NativeToken: "ETH", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 421614, Symbol: "ARBITRUM", Name: "Arbitrum Sepolia", NativeToken: "ETH", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 11155111, Symbol: "ETH", Name: "Ethereum Sepolia", NativeToken: "ETH", Network: Testnet})
	RegisterNetwork(&Params{ChainID: 11155420, Symbol: "OPTIMISM", Name: "Optimism Sepolia", NativeToken: "ETH", Network: Testnet})
}
