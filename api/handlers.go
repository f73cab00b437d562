package api

import (
	"encoding/json"
	"net/http"

	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

// approveToken handles POST /private/approve-token.
func (a *API) approveToken(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	txHash, err := a.manager.Approve(r.Context(), lifecycle.ApproveParams{
		ClientRequestID: req.ClientRequestID,
		Symbol:          req.Symbol,
		Amount:          req.Amount,
		GasPriceWei:     req.GasPriceWei,
	})
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, TxHashResponse{TxHash: txHash})
}

// withdraw handles POST /private/withdraw. It is a transfer whose
// destination must pass the withdrawal whitelist.
func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	a.submitTransfer(w, r, WithdrawEndpoint)
}

// transfer handles POST /private/transfer.
func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	a.submitTransfer(w, r, TransferEndpoint)
}

func (a *API) submitTransfer(w http.ResponseWriter, r *http.Request, path string) {
	var req TransferRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	txHash, err := a.manager.Transfer(r.Context(), lifecycle.TransferParams{
		ClientRequestID: req.ClientRequestID,
		Symbol:          req.Symbol,
		Amount:          req.Amount,
		AddressTo:       req.AddressTo,
		GasLimit:        req.GasLimit,
		GasPriceWei:     req.GasPriceWei,
		RequestPath:     path,
	})
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, TxHashResponse{TxHash: txHash})
}

// wrapUnwrap handles POST /private/wrap-unwrap.
func (a *API) wrapUnwrap(w http.ResponseWriter, r *http.Request) {
	var req WrapUnwrapRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	txHash, err := a.manager.WrapUnwrap(r.Context(), lifecycle.WrapUnwrapParams{
		ClientRequestID: req.ClientRequestID,
		Symbol:          req.Symbol,
		Amount:          req.Amount,
		Operation:       req.Operation,
		GasPriceWei:     req.GasPriceWei,
	})
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, TxHashResponse{TxHash: txHash})
}

// insertOrder handles POST /private/insert-order.
func (a *API) insertOrder(w http.ResponseWriter, r *http.Request) {
	var req InsertOrderRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	res, err := a.manager.InsertOrder(r.Context(), lifecycle.OrderParams{
		ClientRequestID:  req.ClientRequestID,
		Symbol:           req.Symbol,
		Side:             req.Side,
		Quantity:         req.Quantity,
		Price:            req.Price,
		OrderType:        req.OrderType,
		GasPriceWei:      req.GasPriceWei,
		TargetedBlockNum: req.TargetedBlockNum,
	})
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, ResultResponse{Result: InsertOrderResult{TxHash: res.TxHash, Nonce: res.Nonce}})
}

// amendRequest handles POST /private/amend-request.
func (a *API) amendRequest(w http.ResponseWriter, r *http.Request) {
	var req AmendRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	txHash, err := a.manager.Amend(r.Context(), lifecycle.AmendParams{
		ClientRequestID: req.ClientRequestID,
		GasPriceWei:     req.GasPriceWei,
		Price:           req.Price,
		Quantity:        req.Quantity,
		Amount:          req.Amount,
	})
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, ResultResponse{Result: TxHashResponse{TxHash: txHash}})
}

// cancelRequest handles DELETE /private/cancel-request.
func (a *API) cancelRequest(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	txHash, err := a.manager.Cancel(r.Context(), lifecycle.CancelParams{
		ClientRequestID: req.ClientRequestID,
		GasPriceWei:     req.GasPriceWei,
	})
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, ResultResponse{Result: TxHashResponse{TxHash: txHash}})
}

// cancelAll handles DELETE /private/cancel-all. A partial failure still
// reports the requests that were canceled, under a 400 status.
func (a *API) cancelAll(w http.ResponseWriter, r *http.Request) {
	var req CancelAllRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		apiErr.Write(w)
		return
	}
	if !req.RequestType.Valid() {
		ErrUnknownRequestType.Withf("%q", req.RequestType).Write(w)
		return
	}
	res := a.manager.CancelAll(r.Context(), req.RequestType)
	if len(res.FailedCancels) > 0 {
		body, err := json.Marshal(res)
		if err != nil {
			ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if _, err := w.Write(body); err != nil {
			log.Warnw("failed to write http response", "error", err)
		}
		return
	}
	httpWriteJSON(w, res)
}

// openRequests handles GET /public/get-all-open-requests. An optional
// request_type query parameter narrows the result.
func (a *API) openRequests(w http.ResponseWriter, r *http.Request) {
	rt := types.RequestType(r.URL.Query().Get(RequestTypeQueryParam))
	if rt != "" && !rt.Valid() {
		ErrUnknownRequestType.Withf("%q", rt).Write(w)
		return
	}
	open := a.manager.OpenRequests(rt)
	if open == nil {
		open = []*types.Request{}
	}
	httpWriteJSON(w, open)
}

// requestStatus handles GET /public/get-request-status.
func (a *API) requestStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(ClientRequestIDQueryParam)
	if id == "" {
		ErrMalformedParam.Withf("missing %s", ClientRequestIDQueryParam).Write(w)
		return
	}
	req, err := a.manager.RequestStatus(id)
	if err != nil {
		lifecycleError(err).Write(w)
		return
	}
	httpWriteJSON(w, req)
}

// status handles GET /public/status, the readiness probe.
func (a *API) status(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(); err != nil {
			ErrVenueUnavailable.WithErr(err).Write(w)
			return
		}
	}
	byType := make(map[string]int)
	for _, open := range a.manager.OpenRequests("") {
		byType[string(open.RequestType)]++
	}
	_, finalized := a.manager.CacheStats()
	httpWriteJSON(w, StatusResponse{
		Status:            "ok",
		OpenRequests:      byType,
		FinalizedRequests: finalized,
	})
}
