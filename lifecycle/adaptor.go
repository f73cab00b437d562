package lifecycle

import (
	"context"

	"github.com/vortexdex/dexproxy/types"
)

// SubmitOutcome is what a venue reports after signing (and usually
// broadcasting) a transaction for a request.
type SubmitOutcome struct {
	TxHash string
	// RawTx is the signed payload, kept for bundle staging and re-signing.
	RawTx []byte
}

// Adaptor is the venue capability set. The lifecycle manager owns request
// state and nonce allocation; the adaptor translates a request into a
// venue-specific signed transaction and broadcasts it. Submission failures
// must unwrap to *chain.SubmitError so the manager can classify them.
type Adaptor interface {
	// Name identifies the venue in logs and events.
	Name() string
	// GasPriceFast returns the venue gas oracle price targeting next-block
	// inclusion, in wei.
	GasPriceFast(ctx context.Context) (*types.BigInt, error)

	// SubmitApprove signs and broadcasts a token allowance approval.
	SubmitApprove(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)
	// SubmitTransfer signs and broadcasts a token transfer.
	SubmitTransfer(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)
	// SubmitOrder signs and broadcasts an order placement. Amends reuse it
	// at the original nonce with the new fields.
	SubmitOrder(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)
	// SubmitWrapUnwrap signs and broadcasts a native-token wrap or unwrap.
	SubmitWrapUnwrap(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)
	// SubmitCancel broadcasts the venue's cancel equivalent at the request's
	// nonce (a zero-value self-send on plain EVM venues).
	SubmitCancel(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)

	// SignOrder signs an order without broadcasting, for staging into a
	// builder bundle.
	SignOrder(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)
	// Resign rebuilds a signed transaction at a different nonce, used when a
	// bundle cancel shifts later members down.
	Resign(ctx context.Context, rawTx []byte, newNonce uint64) (raw []byte, txHash string, err error)
}
