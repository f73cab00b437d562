// Package types holds the request data model shared by the cache, the
// dispatcher, the poller and the API surface.
package types

import (
	"fmt"
	"time"
)

// RequestType distinguishes the kinds of client intents the proxy executes.
type RequestType string

const (
	RequestTypeOrder      RequestType = "ORDER"
	RequestTypeTransfer   RequestType = "TRANSFER"
	RequestTypeApprove    RequestType = "APPROVE"
	RequestTypeWrapUnwrap RequestType = "WRAP_UNWRAP"
)

// Valid reports whether t is one of the known request types.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeOrder, RequestTypeTransfer, RequestTypeApprove, RequestTypeWrapUnwrap:
		return true
	}
	return false
}

// ActionTag labels each transaction attempt recorded on a request. It matches
// the request type for regular attempts and replacements; ActionCancel marks
// a cancel attempt at the same nonce.
type ActionTag string

const (
	ActionOrder      = ActionTag(RequestTypeOrder)
	ActionTransfer   = ActionTag(RequestTypeTransfer)
	ActionApprove    = ActionTag(RequestTypeApprove)
	ActionWrapUnwrap = ActionTag(RequestTypeWrapUnwrap)
	ActionCancel     ActionTag = "CANCEL"
)

// RequestStatus is the lifecycle state of a request. Transitions are
// monotonic along PENDING → CANCEL_REQUESTED → {SUCCEEDED, FAILED, CANCELED};
// the cancel-requested hop is optional and the three terminal states are
// absorbing.
type RequestStatus string

const (
	StatusPending         RequestStatus = "PENDING"
	StatusCancelRequested RequestStatus = "CANCEL_REQUESTED"
	StatusSucceeded       RequestStatus = "SUCCEEDED"
	StatusFailed          RequestStatus = "FAILED"
	StatusCanceled        RequestStatus = "CANCELED"
)

// Terminal reports whether s is one of the absorbing states.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

func (s RequestStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusCancelRequested:
		return 1
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the
// lifecycle partial order. Self-transitions are allowed for non-terminal
// states (re-submitting a cancel keeps CANCEL_REQUESTED).
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// TxAttempt is one (hash, action) entry of a request's attempt list.
type TxAttempt struct {
	Hash   string    `json:"hash"`
	Action ActionTag `json:"action"`
}

// OrderFields carries the ORDER-specific request attributes.
type OrderFields struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	OrderType string `json:"order_type,omitempty"`
}

// TransferFields carries the TRANSFER-specific request attributes.
type TransferFields struct {
	Symbol      string `json:"symbol"`
	Amount      string `json:"amount"`
	AddressTo   string `json:"address_to"`
	RequestPath string `json:"request_path,omitempty"`
	GasLimit    uint64 `json:"gas_limit,omitempty"`
}

// ApproveFields carries the APPROVE-specific request attributes.
type ApproveFields struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// WrapUnwrapFields carries the WRAP_UNWRAP-specific request attributes.
type WrapUnwrapFields struct {
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Operation string `json:"operation"` // "wrap" or "unwrap"
}

// Request is the central entity: a client-originated intent to perform an
// on-chain action, tracked through to a terminal status. It serializes to
// the exact JSON stored in the key-value store and returned by the API.
type Request struct {
	ClientRequestID string        `json:"client_request_id"`
	RequestType     RequestType   `json:"request_type"`
	RequestStatus   RequestStatus `json:"request_status"`
	ReceivedAtMs    int64         `json:"received_at_ms"`
	FinalisedAtMs   int64         `json:"finalised_at_ms,omitempty"`

	// Nonce is nil until the dispatcher assigns one.
	Nonce *uint64 `json:"nonce,omitempty"`

	// TxHashes and UsedGasPricesWei are parallel lists, one entry per
	// attempt. Gas price entries may be nil for venues where gas is
	// externally abstracted.
	TxHashes         []TxAttempt `json:"tx_hashes"`
	UsedGasPricesWei []*BigInt   `json:"used_gas_prices_wei"`

	DexSpecific DexSpecific `json:"dex_specific,omitempty"`

	Order      *OrderFields      `json:"order,omitempty"`
	Transfer   *TransferFields   `json:"transfer,omitempty"`
	Approve    *ApproveFields    `json:"approve,omitempty"`
	WrapUnwrap *WrapUnwrapFields `json:"wrap_unwrap,omitempty"`
}

// NewRequest builds a PENDING request with the ingress timestamp set.
func NewRequest(id string, rt RequestType) *Request {
	return &Request{
		ClientRequestID: id,
		RequestType:     rt,
		RequestStatus:   StatusPending,
		ReceivedAtMs:    time.Now().UnixMilli(),
	}
}

// Finalised reports whether the request reached a terminal status.
func (r *Request) Finalised() bool {
	return r.RequestStatus.Terminal()
}

// SetStatus transitions the request to next, enforcing the lifecycle partial
// order. On a terminal transition it stamps FinalisedAtMs.
func (r *Request) SetStatus(next RequestStatus) error {
	if r.RequestStatus == next {
		return nil
	}
	if !r.RequestStatus.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s for request %s",
			r.RequestStatus, next, r.ClientRequestID)
	}
	r.RequestStatus = next
	if next.Terminal() {
		r.FinalisedAtMs = time.Now().UnixMilli()
	}
	return nil
}

// AppendAttempt records one more transaction attempt, keeping the hash and
// gas price lists parallel. A request without a nonce cannot carry a cancel
// attempt (there is nothing to replace).
func (r *Request) AppendAttempt(hash string, action ActionTag, gasPriceWei *BigInt) error {
	if action == ActionCancel && r.Nonce == nil {
		return fmt.Errorf("request %s has no nonce, cannot record cancel attempt", r.ClientRequestID)
	}
	r.TxHashes = append(r.TxHashes, TxAttempt{Hash: hash, Action: action})
	r.UsedGasPricesWei = append(r.UsedGasPricesWei, gasPriceWei.Clone())
	return nil
}

// LastUsedGasPrice returns the gas price of the most recent attempt, or nil
// if no priced attempt exists.
func (r *Request) LastUsedGasPrice() *BigInt {
	for i := len(r.UsedGasPricesWei) - 1; i >= 0; i-- {
		if r.UsedGasPricesWei[i] != nil {
			return r.UsedGasPricesWei[i]
		}
	}
	return nil
}

// LiveHash returns the hash of the latest attempt whose action matches the
// request type, i.e. the attempt currently racing any cancels for the nonce.
func (r *Request) LiveHash() string {
	for i := len(r.TxHashes) - 1; i >= 0; i-- {
		if r.TxHashes[i].Action == ActionTag(r.RequestType) {
			return r.TxHashes[i].Hash
		}
	}
	return ""
}

// HasAttempt reports whether hash is recorded on this request.
func (r *Request) HasAttempt(hash string) bool {
	for _, a := range r.TxHashes {
		if a.Hash == hash {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (r *Request) Clone() *Request {
	out := *r
	if r.Nonce != nil {
		n := *r.Nonce
		out.Nonce = &n
	}
	out.TxHashes = append([]TxAttempt(nil), r.TxHashes...)
	out.UsedGasPricesWei = make([]*BigInt, len(r.UsedGasPricesWei))
	for i, p := range r.UsedGasPricesWei {
		out.UsedGasPricesWei[i] = p.Clone()
	}
	out.DexSpecific = r.DexSpecific.Clone()
	if r.Order != nil {
		o := *r.Order
		out.Order = &o
	}
	if r.Transfer != nil {
		t := *r.Transfer
		out.Transfer = &t
	}
	if r.Approve != nil {
		a := *r.Approve
		out.Approve = &a
	}
	if r.WrapUnwrap != nil {
		w := *r.WrapUnwrap
		out.WrapUnwrap = &w
	}
	return &out
}
