package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
	"github.com/klingon-exchange/htlc-resolver/internal/swap"
	"github.com/klingon-exchange/htlc-resolver/pkg/helpers"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// ========================================
// Swap handlers
// ========================================

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !s.decode(w, r, "create", &req) {
		return
	}

	res, err := s.coordinator.Create(r.Context(), swap.CreateRequest{
		Maker:      req.Maker,
		SrcChainID: req.SrcChainID,
		DstChainID: req.DstChainID,
		SrcToken:   req.SrcToken,
		DstToken:   req.DstToken,
		SrcAmount:  req.SrcAmount,
		DstAmount:  req.DstAmount,
		Timelock:   req.Timelock,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orderToInfo(res.Order, !res.Existing))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !s.decode(w, r, "execute", &req) {
		return
	}
	hash, err := parseOrderHash("execute", req.OrderHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.coordinator.Execute(r.Context(), hash, req.MakerSignature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &ExecuteResponse{
		Success:   true,
		OrderHash: result.Order.Hash.Hex(),
		Status:    result.Order.Status.String(),
		SrcTxHash: hashOrEmpty(result.SrcTxHash),
		DstTxHash: hashOrEmpty(result.DstTxHash),
		Message:   "escrows deployed on both chains",
	})
}

func (s *Server) handleSwapStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := parseOrderHash("status", r.PathValue("orderHash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	o, err := s.coordinator.Get(r.Context(), hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orderToInfo(o, false))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.OrderFilter{Limit: 50}

	for _, v := range q["status"] {
		st, err := order.ParseStatus(v)
		if err != nil {
			s.writeError(w, r, validationError("list", err.Error()))
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if v := q.Get("maker"); v != "" {
		maker, err := order.ParseAddress(v)
		if err != nil {
			s.writeError(w, r, validationError("list", err.Error()))
			return
		}
		filter.Maker = maker
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				s.writeError(w, r, validationError("list", fmt.Sprintf("invalid %s %q", key, v)))
				return
			}
			*dst = n
		}
	}
	if v := q.Get("chainId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeError(w, r, validationError("list", fmt.Sprintf("invalid chainId %q", v)))
			return
		}
		filter.ChainID = id
	}

	orders, total, err := s.coordinator.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := &ListResponse{Orders: make([]*SwapOrder, 0, len(orders)), Total: total}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, orderToInfo(o, false))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ========================================
// Leg handlers
// ========================================

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !s.decode(w, r, "withdraw", &req) {
		return
	}
	hash, err := parseOrderHash("withdraw", req.OrderHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	secret, err := order.ParseSecret(req.Secret)
	if err != nil {
		s.writeError(w, r, validationError("withdraw", err.Error()))
		return
	}
	if req.ChainID == 0 {
		s.writeError(w, r, validationError("withdraw", "chainId is required"))
		return
	}

	res, err := s.coordinator.Withdraw(r.Context(), hash, secret, req.ChainID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, legResponse(res))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !s.decode(w, r, "cancel", &req) {
		return
	}
	hash, err := parseOrderHash("cancel", req.OrderHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ChainID == 0 {
		s.writeError(w, r, validationError("cancel", "chainId is required"))
		return
	}

	res, err := s.coordinator.Cancel(r.Context(), hash, req.ChainID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, legResponse(res))
}

func legResponse(res *swap.LegResult) *LegResponse {
	return &LegResponse{
		Success: true,
		Status:  res.Order.Status.String(),
		TxHash:  hashOrEmpty(res.TxHash),
		Message: res.Message,
	}
}

// ========================================
// Resolver status
// ========================================

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.coordinator.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &StatusResponse{
		Status:          summary.Status,
		SupportedChains: summary.SupportedChains,
		ActiveOrders:    summary.ActiveOrders,
		Version:         summary.Version,
		WSClients:       s.wsHub.ClientCount(),
	})
}

// ========================================
// Encoding
// ========================================

// decode reads a JSON body into v, writing a validation error on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, validationError(op, "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func parseOrderHash(op, s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, validationError(op, "orderHash is required")
	}
	b, err := helpers.HexToBytes32(s)
	if err != nil {
		return common.Hash{}, validationError(op, "invalid orderHash: "+err.Error())
	}
	return common.Hash(b), nil
}

func validationError(op, message string) error {
	return &swap.Error{Kind: swap.KindValidation, Op: op, Message: message}
}

// httpStatus maps an error kind to its HTTP status code.
func httpStatus(kind swap.Kind) int {
	switch kind {
	case swap.KindValidation, swap.KindInvalidSecret:
		return http.StatusBadRequest
	case swap.KindAuthorization:
		return http.StatusUnauthorized
	case swap.KindNotFound:
		return http.StatusNotFound
	case swap.KindStateConflict, swap.KindDuplicateOrder, swap.KindTimelock:
		return http.StatusConflict
	case swap.KindChain:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

// writeError writes the structured error body for err.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := swap.KindOf(err)
	status := httpStatus(kind)

	info := ErrorInfo{Code: string(kind), Message: string(kind)}
	message := err.Error()

	var serr *swap.Error
	if errors.As(err, &serr) {
		if serr.Message != "" {
			info.Message = serr.Message
		}
		info.ChainID = serr.ChainID
		info.Leg = string(serr.Leg)
	}

	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "request_id", w.Header().Get(RequestIDHeader), "path", r.URL.Path, "error", err)
		message = "internal error"
		info.Message = message
	} else {
		s.log.Debug("Request rejected", "request_id", w.Header().Get(RequestIDHeader), "path", r.URL.Path, "code", kind, "error", err)
	}

	s.writeJSON(w, status, &ErrorResponse{
		Success: false,
		Message: message,
		Error:   info,
	})
}
