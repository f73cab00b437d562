package api

import (
	"github.com/vortexdex/dexproxy/types"
)

// ApproveRequest is the body of the approve-token endpoint.
type ApproveRequest struct {
	ClientRequestID string        `json:"client_request_id"`
	Symbol          string        `json:"symbol"`
	Amount          string        `json:"amount"`
	GasPriceWei     *types.BigInt `json:"gas_price_wei,omitempty"`
}

// TransferRequest is the body of the withdraw and transfer endpoints.
type TransferRequest struct {
	ClientRequestID string        `json:"client_request_id"`
	Symbol          string        `json:"symbol"`
	Amount          string        `json:"amount"`
	AddressTo       string        `json:"address_to"`
	GasLimit        uint64        `json:"gas_limit,omitempty"`
	GasPriceWei     *types.BigInt `json:"gas_price_wei,omitempty"`
}

// WrapUnwrapRequest is the body of the wrap-unwrap endpoint.
type WrapUnwrapRequest struct {
	ClientRequestID string        `json:"client_request_id"`
	Symbol          string        `json:"symbol"`
	Amount          string        `json:"amount"`
	Operation       string        `json:"operation"`
	GasPriceWei     *types.BigInt `json:"gas_price_wei,omitempty"`
}

// InsertOrderRequest is the body of the insert-order endpoint.
type InsertOrderRequest struct {
	ClientRequestID  string        `json:"client_request_id"`
	Symbol           string        `json:"symbol"`
	Side             string        `json:"side"`
	Quantity         string        `json:"quantity"`
	Price            string        `json:"price"`
	OrderType        string        `json:"order_type,omitempty"`
	GasPriceWei      *types.BigInt `json:"gas_price_wei,omitempty"`
	TargetedBlockNum uint64        `json:"targeted_block_num,omitempty"`
}

// AmendRequest is the body of the amend-request endpoint.
type AmendRequest struct {
	ClientRequestID string        `json:"client_request_id"`
	GasPriceWei     *types.BigInt `json:"gas_price_wei,omitempty"`
	Price           string        `json:"price,omitempty"`
	Quantity        string        `json:"quantity,omitempty"`
	Amount          string        `json:"amount,omitempty"`
}

// CancelRequest is the body of the cancel-request endpoint.
type CancelRequest struct {
	ClientRequestID string        `json:"client_request_id"`
	GasPriceWei     *types.BigInt `json:"gas_price_wei,omitempty"`
}

// CancelAllRequest is the body of the cancel-all endpoint.
type CancelAllRequest struct {
	RequestType types.RequestType `json:"request_type"`
}

// TxHashResponse is the flat success body of approve and transfer.
type TxHashResponse struct {
	TxHash string `json:"tx_hash"`
}

// ResultResponse wraps nested success bodies.
type ResultResponse struct {
	Result any `json:"result"`
}

// InsertOrderResult is the result of a successful insert-order.
type InsertOrderResult struct {
	TxHash string `json:"tx_hash"`
	Nonce  uint64 `json:"nonce"`
}

// StatusResponse is the readiness body, with request counts broken down by
// type.
type StatusResponse struct {
	Status            string         `json:"status"`
	OpenRequests      map[string]int `json:"open_requests"`
	FinalizedRequests int            `json:"finalized_requests"`
}
