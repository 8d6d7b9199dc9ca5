package order

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// Validation errors.
var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidChain    = errors.New("invalid chain id")
	ErrInvalidTimelock = errors.New("invalid timelock")
)

// Params are the nine immutable fields an order hash is computed from.
type Params struct {
	Maker      common.Address
	SrcChainID uint64
	DstChainID uint64
	SrcToken   common.Address
	DstToken   common.Address
	SrcAmount  *big.Int
	DstAmount  *big.Int
	HashLock   common.Hash
	Timelock   int64
}

// Validate checks the typed parameters.
func (p *Params) Validate() error {
	if p.Maker == (common.Address{}) {
		return fmt.Errorf("%w: maker is the zero address", ErrInvalidAddress)
	}
	if p.SrcToken == (common.Address{}) {
		return fmt.Errorf("%w: srcToken is the zero address", ErrInvalidAddress)
	}
	if p.DstToken == (common.Address{}) {
		return fmt.Errorf("%w: dstToken is the zero address", ErrInvalidAddress)
	}
	if p.SrcChainID == 0 || p.DstChainID == 0 {
		return fmt.Errorf("%w: chain ids must be non-zero", ErrInvalidChain)
	}
	if p.SrcChainID == p.DstChainID {
		return fmt.Errorf("%w: source and destination chains must differ", ErrInvalidChain)
	}
	if err := validateAmount("srcAmount", p.SrcAmount); err != nil {
		return err
	}
	if err := validateAmount("dstAmount", p.DstAmount); err != nil {
		return err
	}
	if p.Timelock <= 0 {
		return fmt.Errorf("%w: must be a positive unix timestamp", ErrInvalidTimelock)
	}
	return nil
}

func validateAmount(field string, n *big.Int) error {
	if n == nil || n.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, field)
	}
	if n.Cmp(helpers.MaxUint256) > 0 {
		return fmt.Errorf("%w: %s exceeds uint256", ErrInvalidAmount, field)
	}
	return nil
}

// ParseAddress parses a 0x-prefixed hex address. Mixed-case input must carry
// a valid EIP-55 checksum; all-lowercase and all-uppercase are accepted.
func ParseAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex() != s {
			return common.Address{}, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
		}
	}
	return addr, nil
}

// RawParams is the string form of Params as received from clients.
type RawParams struct {
	Maker      string
	SrcChainID uint64
	DstChainID uint64
	SrcToken   string
	DstToken   string
	SrcAmount  string
	DstAmount  string
	HashLock   common.Hash
	Timelock   int64
}

// Parse validates and converts raw parameters.
func (r RawParams) Parse() (Params, error) {
	var p Params
	var err error

	if p.Maker, err = ParseAddress(r.Maker); err != nil {
		return Params{}, fmt.Errorf("maker: %w", err)
	}
	if p.SrcToken, err = ParseAddress(r.SrcToken); err != nil {
		return Params{}, fmt.Errorf("srcToken: %w", err)
	}
	if p.DstToken, err = ParseAddress(r.DstToken); err != nil {
		return Params{}, fmt.Errorf("dstToken: %w", err)
	}
	if p.SrcAmount, err = helpers.ParseAmount(r.SrcAmount); err != nil {
		return Params{}, fmt.Errorf("%w: srcAmount: %v", ErrInvalidAmount, err)
	}
	if p.DstAmount, err = helpers.ParseAmount(r.DstAmount); err != nil {
		return Params{}, fmt.Errorf("%w: dstAmount: %v", ErrInvalidAmount, err)
	}
	p.SrcChainID = r.SrcChainID
	p.DstChainID = r.DstChainID
	p.HashLock = r.HashLock
	p.Timelock = r.Timelock

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// IsValidationError reports whether err originates from parameter validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidChain) ||
		errors.Is(err, ErrInvalidTimelock)
}
