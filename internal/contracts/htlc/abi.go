package htlc

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FactoryABI is the escrow factory interface. One escrow per order hash and side.
const FactoryABI = `[
  {"type":"function","name":"deploySourceHTLC","stateMutability":"nonpayable","inputs":[
    {"name":"orderHash","type":"bytes32"},{"name":"maker","type":"address"},
    {"name":"srcToken","type":"address"},{"name":"srcAmount","type":"uint256"},
    {"name":"dstToken","type":"address"},{"name":"dstAmount","type":"uint256"},
    {"name":"hashLock","type":"bytes32"},{"name":"timelock","type":"uint256"},
    {"name":"dstChainId","type":"uint256"}],
   "outputs":[{"name":"escrow","type":"address"}]},
  {"type":"function","name":"deployDestinationHTLC","stateMutability":"nonpayable","inputs":[
    {"name":"orderHash","type":"bytes32"},{"name":"taker","type":"address"},
    {"name":"srcToken","type":"address"},{"name":"srcAmount","type":"uint256"},
    {"name":"dstToken","type":"address"},{"name":"dstAmount","type":"uint256"},
    {"name":"hashLock","type":"bytes32"},{"name":"timelock","type":"uint256"},
    {"name":"srcChainId","type":"uint256"}],
   "outputs":[{"name":"escrow","type":"address"}]},
  {"type":"function","name":"getSourceHTLC","stateMutability":"view",
   "inputs":[{"name":"orderHash","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getDestinationHTLC","stateMutability":"view",
   "inputs":[{"name":"orderHash","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"SourceHTLCDeployed","anonymous":false,"inputs":[
    {"name":"orderHash","type":"bytes32","indexed":true},{"name":"escrow","type":"address","indexed":false},
    {"name":"maker","type":"address","indexed":true},{"name":"hashLock","type":"bytes32","indexed":false},
    {"name":"timelock","type":"uint256","indexed":false}]},
  {"type":"event","name":"DestinationHTLCDeployed","anonymous":false,"inputs":[
    {"name":"orderHash","type":"bytes32","indexed":true},{"name":"escrow","type":"address","indexed":false},
    {"name":"taker","type":"address","indexed":true},{"name":"hashLock","type":"bytes32","indexed":false},
    {"name":"timelock","type":"uint256","indexed":false}]}
]`

// EscrowABI is the per-order escrow instance interface.
const EscrowABI = `[
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"secret","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"getDetails","stateMutability":"view","inputs":[],"outputs":[
    {"name":"orderHash","type":"bytes32"},{"name":"side","type":"uint8"},
    {"name":"depositor","type":"address"},{"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},{"name":"hashLock","type":"bytes32"},
    {"name":"timelock","type":"uint256"},{"name":"state","type":"uint8"},
    {"name":"secret","type":"bytes32"},{"name":"actor","type":"address"}]},
  {"type":"event","name":"Withdrawn","anonymous":false,"inputs":[
    {"name":"orderHash","type":"bytes32","indexed":true},{"name":"actor","type":"address","indexed":true},
    {"name":"secret","type":"bytes32","indexed":false}]},
  {"type":"event","name":"Cancelled","anonymous":false,"inputs":[
    {"name":"orderHash","type":"bytes32","indexed":true},{"name":"actor","type":"address","indexed":true}]}
]`

// ERC20ABI covers the calls needed for custody.
const ERC20ABI = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Parsed ABIs.
var (
	factoryABI = mustParse("factory", FactoryABI)
	escrowABI  = mustParse("escrow", EscrowABI)
	erc20ABI   = mustParse("erc20", ERC20ABI)
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return parsed
}
