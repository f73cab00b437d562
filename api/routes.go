package api

// Route constants for the API endpoints

const (
	// Private (trading engine) endpoints
	ApproveTokenEndpoint  = "/private/approve-token"  // POST: Submit APPROVE
	WithdrawEndpoint      = "/private/withdraw"       // POST: Submit whitelisted TRANSFER
	TransferEndpoint      = "/private/transfer"       // POST: Submit TRANSFER
	WrapUnwrapEndpoint    = "/private/wrap-unwrap"    // POST: Submit WRAP_UNWRAP
	InsertOrderEndpoint   = "/private/insert-order"   // POST: Submit ORDER
	AmendRequestEndpoint  = "/private/amend-request"  // POST: Replace PENDING at same nonce
	CancelRequestEndpoint = "/private/cancel-request" // DELETE: Cancel by id
	CancelAllEndpoint     = "/private/cancel-all"     // DELETE: Cancel all of a type

	// Public endpoints
	OpenRequestsEndpoint  = "/public/get-all-open-requests" // GET: Enumerate open requests
	RequestStatusEndpoint = "/public/get-request-status"    // GET: Lookup one request
	StatusEndpoint        = "/public/status"                // GET: Readiness
	WebsocketEndpoint     = "/public/ws"                    // GET: Subscription stream

	// Query parameters
	RequestTypeQueryParam     = "request_type"
	ClientRequestIDQueryParam = "client_request_id"
)
