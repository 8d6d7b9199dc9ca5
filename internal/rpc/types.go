package rpc

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/swap"
)

// ========================================
// Requests
// ========================================

// CreateRequest is the body of POST /swap/create.
type CreateRequest struct {
	Maker      string `json:"maker"`
	SrcChainID uint64 `json:"srcChainId"`
	DstChainID uint64 `json:"dstChainId"`
	SrcToken   string `json:"srcToken"`
	DstToken   string `json:"dstToken"`
	SrcAmount  string `json:"srcAmount"`
	DstAmount  string `json:"dstAmount"`
	Timelock   int64  `json:"timelock,omitempty"`
}

// ExecuteRequest is the body of POST /swap/execute.
type ExecuteRequest struct {
	OrderHash      string `json:"orderHash"`
	MakerSignature string `json:"makerSignature"`
}

// WithdrawRequest is the body of POST /withdraw.
type WithdrawRequest struct {
	OrderHash string `json:"orderHash"`
	Secret    string `json:"secret"`
	ChainID   uint64 `json:"chainId"`
}

// CancelRequest is the body of POST /cancel.
type CancelRequest struct {
	OrderHash string `json:"orderHash"`
	ChainID   uint64 `json:"chainId"`
}

// ========================================
// Responses
// ========================================

// SwapOrder is the JSON view of an order.
type SwapOrder struct {
	OrderHash  string `json:"orderHash"`
	Maker      string `json:"maker"`
	SrcChainID uint64 `json:"srcChainId"`
	DstChainID uint64 `json:"dstChainId"`
	SrcToken   string `json:"srcToken"`
	DstToken   string `json:"dstToken"`
	SrcAmount  string `json:"srcAmount"`
	DstAmount  string `json:"dstAmount"`
	Timelock   int64  `json:"timelock"`
	Secret     string `json:"secret,omitempty"`
	HashLock   string `json:"hashLock"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt,omitempty"`

	SrcHTLCAddress string `json:"srcHTLCAddress,omitempty"`
	DstHTLCAddress string `json:"dstHTLCAddress,omitempty"`
	SrcTxHash      string `json:"srcTxHash,omitempty"`
	DstTxHash      string `json:"dstTxHash,omitempty"`

	Source      LegInfo `json:"source"`
	Destination LegInfo `json:"destination"`
}

// LegInfo is the JSON view of one leg.
type LegInfo struct {
	ChainID    uint64 `json:"chainId"`
	Depositor  string `json:"depositor"`
	Escrow     string `json:"escrow,omitempty"`
	DeployTx   string `json:"deployTx,omitempty"`
	WithdrawTx string `json:"withdrawTx,omitempty"`
	CancelTx   string `json:"cancelTx,omitempty"`
	State      string `json:"state"`
}

// ExecuteResponse is the body returned by POST /swap/execute.
type ExecuteResponse struct {
	Success   bool   `json:"success"`
	OrderHash string `json:"orderHash"`
	Status    string `json:"status"`
	SrcTxHash string `json:"srcTxHash,omitempty"`
	DstTxHash string `json:"dstTxHash,omitempty"`
	Message   string `json:"message"`
}

// LegResponse is the body returned by POST /withdraw and POST /cancel.
type LegResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	TxHash  string `json:"txHash,omitempty"`
	Message string `json:"message"`
}

// StatusResponse is the body returned by GET /status.
type StatusResponse struct {
	Status          string   `json:"status"`
	SupportedChains []uint64 `json:"supportedChains"`
	ActiveOrders    int      `json:"activeOrders"`
	Version         string   `json:"version"`
	WSClients       int      `json:"wsClients"`
}

// ListResponse is the body returned by GET /swaps. Total counts every
// matching order, not just this page.
type ListResponse struct {
	Orders []*SwapOrder `json:"orders"`
	Total  int          `json:"total"`
}

// ErrorInfo describes a failure.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ChainID uint64 `json:"chainId,omitempty"`
	Leg     string `json:"leg,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   ErrorInfo `json:"error"`
}

// ========================================
// Conversions
// ========================================

// orderToInfo converts an order. The secret is included only when
// withSecret is set or a leg has been withdrawn.
func orderToInfo(o *order.Order, withSecret bool) *SwapOrder {
	info := &SwapOrder{
		OrderHash:      o.Hash.Hex(),
		Maker:          o.Maker.Hex(),
		SrcChainID:     o.SrcChainID,
		DstChainID:     o.DstChainID,
		SrcToken:       o.SrcToken.Hex(),
		DstToken:       o.DstToken.Hex(),
		SrcAmount:      o.SrcAmount.String(),
		DstAmount:      o.DstAmount.String(),
		Timelock:       o.Timelock,
		HashLock:       o.HashLock.Hex(),
		Status:         o.Status.String(),
		CreatedAt:      o.CreatedAt.Unix(),
		SrcHTLCAddress: addressOrEmpty(o.Source.Escrow),
		DstHTLCAddress: addressOrEmpty(o.Destination.Escrow),
		SrcTxHash:      hashOrEmpty(o.Source.DeployTx),
		DstTxHash:      hashOrEmpty(o.Destination.DeployTx),
		Source:         legToInfo(&o.Source),
		Destination:    legToInfo(&o.Destination),
	}
	if !o.UpdatedAt.IsZero() {
		info.UpdatedAt = o.UpdatedAt.Unix()
	}
	if withSecret || o.SecretRevealed() {
		info.Secret = o.Secret.Hex()
	}
	return info
}

func legToInfo(l *order.Leg) LegInfo {
	state := string(l.State)
	if state == "" {
		state = "none"
	}
	return LegInfo{
		ChainID:    l.ChainID,
		Depositor:  l.Depositor.Hex(),
		Escrow:     addressOrEmpty(l.Escrow),
		DeployTx:   hashOrEmpty(l.DeployTx),
		WithdrawTx: hashOrEmpty(l.WithdrawTx),
		CancelTx:   hashOrEmpty(l.CancelTx),
		State:      state,
	}
}

func addressOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func hashOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

// eventPayload is the WebSocket data of a coordinator event.
func eventPayload(e swap.SwapEvent) map[string]interface{} {
	data := map[string]interface{}{
		"id":        e.ID,
		"orderHash": e.OrderHash.Hex(),
		"timestamp": e.Timestamp.Unix(),
	}
	for k, v := range e.Data {
		data[k] = v
	}
	return data
}
