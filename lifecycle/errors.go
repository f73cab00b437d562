package lifecycle

import (
	"errors"

	"github.com/vortexdex/dexproxy/storage"
)

// Handler-level failure conditions. The API layer maps these onto HTTP
// status codes; everything else surfaces as a generic 400.
var (
	// ErrAlreadyKnown rejects a duplicate client_request_id.
	ErrAlreadyKnown = storage.ErrAlreadyKnown
	// ErrNotFound rejects an operation on an unknown request.
	ErrNotFound = storage.ErrNotFound
	// ErrAlreadyFinalized rejects amend/cancel on a terminal request.
	ErrAlreadyFinalized = errors.New("request is already finalized")
	// ErrNotPending rejects an amend on anything but a PENDING request.
	ErrNotPending = errors.New("request is not pending")
	// ErrGasPriceTooHigh rejects a gas price above the configured cap.
	ErrGasPriceTooHigh = errors.New("gas_price_wei exceeds the configured maximum")
	// ErrCancelInProgress rejects a cancel that would not outbid the
	// previous cancel attempt.
	ErrCancelInProgress = errors.New("cancel already in progress")
	// ErrCancelWindowClosed signals the original transaction was mined
	// before the cancel reached the mempool. Clients must not retry.
	ErrCancelWindowClosed = errors.New("cancel window closed")
	// ErrInsertPending signals a cancel or amend raced the insert before a
	// nonce was assigned. Clients should retry shortly.
	ErrInsertPending = errors.New("RETRY. Insert pending")
)
